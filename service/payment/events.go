package payment

import (
	"context"
	"time"
)

// StepEvent is emitted when a pipeline step completes. Consumers (the
// orchestrator view, the CLI) use these to render live progress.
type StepEvent struct {
	RecordID    string        `json:"record_id"`
	Phase       Phase         `json:"phase"`
	Step        string        `json:"step"`
	Label       string        `json:"label"`
	Detail      string        `json:"detail,omitempty"`
	Index       int           `json:"index"`
	Duration    time.Duration `json:"duration"`
	PhaseTotal  time.Duration `json:"phase_total"`
	PublishedAt time.Time     `json:"published_at"`
}

// SettlementEvent is emitted once per run when the record reaches a
// terminal state.
type SettlementEvent struct {
	RecordID       string        `json:"record_id"`
	ItemLabel      string        `json:"item_label"`
	FinalAmount    int64         `json:"final_amount"`
	Status         Status        `json:"status"`
	TxHash         string        `json:"tx_hash,omitempty"`
	BlockNumber    int64         `json:"block_number,omitempty"`
	Confirmations  int           `json:"confirmations,omitempty"`
	Synthetic      bool          `json:"synthetic"`
	AuthDuration   time.Duration `json:"auth_duration"`
	SettleDuration time.Duration `json:"settle_duration"`
	SettledAt      time.Time     `json:"settled_at,omitzero"`
	PublishedAt    time.Time     `json:"published_at"`
}

// EventPublisher receives pipeline progress events. Implementations must be
// safe for concurrent use; publish failures are logged by the engine and
// never affect the run outcome.
type EventPublisher interface {
	PublishStep(ctx context.Context, event *StepEvent) error
	PublishSettlement(ctx context.Context, event *SettlementEvent) error
}
