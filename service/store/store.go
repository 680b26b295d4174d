// Package store keeps the merchant-facing view of completed settlements:
// balances and transaction history. State is in-memory and session-scoped
// on purpose; nothing here survives a restart.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/brojonat/cardflow/service/payment"
)

// ErrNotFound indicates no settled transaction exists for the given id.
var ErrNotFound = errors.New("transaction not found")

// Fee schedule used by the dashboard's savings comparison: a traditional
// card charges 2.9% + $0.30, the stablecoin rail a flat 0.5%.
const (
	traditionalFeeRate  = 0.029
	traditionalFeeFixed = 30 // cents
	platformFeeRate     = 0.005
)

// Summary is the aggregated merchant dashboard view.
type Summary struct {
	TreasuryBalance int64         `json:"treasury_balance"` // cents
	MerchantBalance int64         `json:"merchant_balance"` // cents
	SalesCount      int           `json:"sales_count"`
	FeesSaved       int64         `json:"fees_saved"` // cents
	AvgSettlement   time.Duration `json:"avg_settlement_ms"`
}

// Store accumulates settled transactions and the resulting balances. Safe
// for concurrent use.
type Store struct {
	mu       sync.RWMutex
	treasury int64
	merchant int64
	settled  []*payment.TransactionRecord
	byID     map[string]*payment.TransactionRecord
}

// NewStore creates a store with the given opening treasury balance in cents.
func NewStore(treasuryOpeningCents int64) *Store {
	return &Store{
		treasury: treasuryOpeningCents,
		byID:     make(map[string]*payment.TransactionRecord),
	}
}

// RecordSettlement applies a settled record: the merchant is credited, the
// treasury debited, and the record appended to history (newest first).
// Records that are not terminal-settled are ignored.
func (s *Store) RecordSettlement(rec *payment.TransactionRecord) {
	if rec == nil || rec.Status != payment.StatusSettled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.byID[rec.ID]; seen {
		return
	}
	s.byID[rec.ID] = rec
	s.settled = append([]*payment.TransactionRecord{rec}, s.settled...)
	s.merchant += rec.FinalAmount
	s.treasury -= rec.FinalAmount
}

// Get returns the settled record for the given id.
func (s *Store) Get(id string) (*payment.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns settled records newest first, with pagination.
func (s *Store) List(limit, offset int) []*payment.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.settled) {
		return nil
	}
	end := len(s.settled)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*payment.TransactionRecord, end-offset)
	copy(out, s.settled[offset:end])
	return out
}

// Count returns the number of settled transactions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.settled)
}

// Summary computes the dashboard aggregates.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var saved int64
	var settleTotal time.Duration
	var settleSamples int
	for _, rec := range s.settled {
		saved += feeSavings(rec.FinalAmount)
		if !rec.SettledAt.IsZero() && rec.SettledAt.After(rec.CreatedAt) {
			settleTotal += rec.SettledAt.Sub(rec.CreatedAt)
			settleSamples++
		}
	}

	summary := Summary{
		TreasuryBalance: s.treasury,
		MerchantBalance: s.merchant,
		SalesCount:      len(s.settled),
		FeesSaved:       saved,
	}
	if settleSamples > 0 {
		summary.AvgSettlement = settleTotal / time.Duration(settleSamples)
	}
	return summary
}

// feeSavings is the per-transaction difference between the traditional fee
// and the platform fee, rounded half-up to the cent.
func feeSavings(amountCents int64) int64 {
	traditional := roundCents(float64(amountCents)*traditionalFeeRate) + traditionalFeeFixed
	platform := roundCents(float64(amountCents) * platformFeeRate)
	return traditional - platform
}

func roundCents(v float64) int64 {
	return int64(v + 0.5)
}
