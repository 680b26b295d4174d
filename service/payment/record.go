package payment

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidItem indicates the purchased item has a non-positive price.
	ErrInvalidItem = errors.New("invalid item: price must be positive")

	// ErrInvalidDiscount indicates the discount is negative or would leave a
	// non-positive final amount.
	ErrInvalidDiscount = errors.New("invalid discount")
)

// Status is the lifecycle state of a transaction record. Transitions are
// monotonic: Pending -> Authorizing -> Settling -> Settled | Failed.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAuthorizing Status = "authorizing"
	StatusSettling    Status = "settling"
	StatusSettled     Status = "settled"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusFailed
}

// TransactionRecord represents one purchase attempt moving through the
// pipeline. Amounts are in cents so the discount arithmetic is exact.
// A record is owned exclusively by the engine while a run is in flight
// and becomes immutable once it reaches a terminal status.
type TransactionRecord struct {
	ID             string    `json:"id"`
	ItemLabel      string    `json:"item_label"`
	OriginalAmount int64     `json:"original_amount"` // cents
	Discount       int64     `json:"discount"`        // cents
	FinalAmount    int64     `json:"final_amount"`    // cents
	Status         Status    `json:"status"`
	TxHash         string    `json:"tx_hash,omitempty"`
	BlockNumber    int64     `json:"block_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	SettledAt      time.Time `json:"settled_at,omitzero"`
}

// NewRecord constructs a well-formed TransactionRecord for a purchase.
// Price and discount are in cents. The final amount is price - discount
// and must be positive.
func NewRecord(itemLabel string, priceCents, discountCents int64) (*TransactionRecord, error) {
	if priceCents <= 0 {
		return nil, fmt.Errorf("%w (got %d cents)", ErrInvalidItem, priceCents)
	}
	if discountCents < 0 || discountCents >= priceCents {
		return nil, fmt.Errorf("%w: must be in [0, price) (price=%d discount=%d)", ErrInvalidDiscount, priceCents, discountCents)
	}

	return &TransactionRecord{
		ID:             uuid.NewString(),
		ItemLabel:      itemLabel,
		OriginalAmount: priceCents,
		Discount:       discountCents,
		FinalAmount:    priceCents - discountCents,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// DiscountFor computes the discount in cents for a price at the given rate,
// rounded half-up to the nearest cent. 499 cents at 3% yields 15 cents.
func DiscountFor(priceCents int64, rate float64) int64 {
	return int64(math.Floor(float64(priceCents)*rate + 0.5))
}

// FormatUSD renders a cent amount as a dollar string, e.g. 1940 -> "$19.40".
func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
