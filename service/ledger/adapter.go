package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable indicates no signer/ledger context is configured.
	ErrUnavailable = errors.New("ledger unavailable: no signer configured")

	// ErrRejected indicates the ledger refused the submission.
	ErrRejected = errors.New("ledger rejected transfer")

	// ErrTimeout indicates the submission did not complete in time.
	ErrTimeout = errors.New("ledger timeout")
)

// TransferResult is the outcome of a successful transfer submission.
type TransferResult struct {
	// TxID is the ledger-assigned transaction identifier.
	TxID string

	// Duration is the wall-clock time the submission took.
	Duration time.Duration
}

// Adapter is the contract the pipeline engine uses to submit a value
// transfer to the ledger. Failures are one of ErrUnavailable, ErrRejected
// or ErrTimeout (checkable with errors.Is); the engine treats all three
// identically under its fallback policy.
type Adapter interface {
	SubmitTransfer(ctx context.Context, lamports uint64, recipient string) (*TransferResult, error)
}
