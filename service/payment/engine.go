package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/brojonat/cardflow/service/ledger"
	"github.com/brojonat/cardflow/service/metrics"
)

// Config holds the engine's read-only configuration. It is loaded once at
// startup and never mutated.
type Config struct {
	// MerchantAddress receives every settlement transfer.
	MerchantAddress string

	// CreditLimitCents feeds the credit-check step's derived detail.
	CreditLimitCents int64

	// LamportsPerCent scales a record's final amount into the ledger's
	// native unit for the broadcast step.
	LamportsPerCent int64

	// PacingMultiplier and PacingFloor stretch each fixed step's simulated
	// cost into an observable wait (wait = cost*multiplier + floor).
	PacingMultiplier int
	PacingFloor      time.Duration

	// InterPhasePause is the pause between authorization and settlement.
	InterPhasePause time.Duration

	// FallbackDelay is the simulated broadcast time when the ledger is
	// unavailable or fails and the run falls back to a synthetic txid.
	FallbackDelay time.Duration

	// CompletionDelay is the pause between reaching Settled and invoking
	// the completion callback, so observers can render the terminal state
	// before consumers react.
	CompletionDelay time.Duration

	// FailOnLedgerError switches off the fallback policy: ledger failures
	// move the record to Failed instead of a synthetic success.
	FailOnLedgerError bool
}

func (c Config) withDefaults() Config {
	if c.CreditLimitCents == 0 {
		c.CreditLimitCents = 50_000 // $500.00
	}
	if c.LamportsPerCent == 0 {
		c.LamportsPerCent = 10_000
	}
	if c.PacingMultiplier == 0 {
		c.PacingMultiplier = 3
	}
	if c.PacingFloor == 0 {
		c.PacingFloor = 200 * time.Millisecond
	}
	if c.InterPhasePause == 0 {
		c.InterPhasePause = 500 * time.Millisecond
	}
	if c.FallbackDelay == 0 {
		c.FallbackDelay = 1500 * time.Millisecond
	}
	if c.CompletionDelay == 0 {
		c.CompletionDelay = 2 * time.Second
	}
	return c
}

// Engine drives a TransactionRecord through the authorization and
// settlement phases, emitting progress events and a terminal outcome
// exactly once per record. Runs for different records are independent;
// the only cross-record state is the in-flight guard.
type Engine struct {
	cfg     Config
	ledger  ledger.Adapter
	events  EventPublisher
	clock   Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	onSettlement func(rec *TransactionRecord)

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewEngine creates a pipeline engine. The ledger adapter may be nil, in
// which case every broadcast uses the synthetic fallback. The events
// publisher and metrics may be nil.
func NewEngine(cfg Config, adapter ledger.Adapter, events EventPublisher, clock Clock, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		ledger:   adapter,
		events:   events,
		clock:    clock,
		metrics:  m,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// SetSettlementCallback registers the completion callback. It is invoked
// exactly once per successful run, after the completion delay. Register
// before the first Start.
func (e *Engine) SetSettlementCallback(fn func(rec *TransactionRecord)) {
	e.onSettlement = fn
}

// Start begins a pipeline run for the record in a new goroutine. It
// returns false without side effects when a run for the same id is already
// in flight or the record is not Pending, so re-entrant triggers never
// double-run a record.
func (e *Engine) Start(ctx context.Context, rec *TransactionRecord) bool {
	e.mu.Lock()
	if _, busy := e.inflight[rec.ID]; busy {
		e.mu.Unlock()
		e.logger.Debug("ignoring start for in-flight record", "record_id", rec.ID)
		return false
	}
	if rec.Status != StatusPending {
		e.mu.Unlock()
		e.logger.Debug("ignoring start for non-pending record",
			"record_id", rec.ID,
			"status", rec.Status,
		)
		return false
	}
	// Claim the record under the lock so a racing Start observes either
	// the in-flight entry or the advanced status.
	e.inflight[rec.ID] = struct{}{}
	rec.Status = StatusAuthorizing
	e.mu.Unlock()

	go e.run(ctx, rec)
	return true
}

func (e *Engine) run(ctx context.Context, rec *TransactionRecord) {
	defer func() {
		e.mu.Lock()
		delete(e.inflight, rec.ID)
		e.mu.Unlock()
	}()

	e.logger.Info("pipeline run started",
		"record_id", rec.ID,
		"item", rec.ItemLabel,
		"final_amount", FormatUSD(rec.FinalAmount),
	)

	authTotal, err := e.authorize(ctx, rec)
	if err != nil {
		e.logger.Warn("pipeline run abandoned during authorization", "record_id", rec.ID, "error", err)
		return
	}

	if err := e.clock.Sleep(ctx, e.cfg.InterPhasePause); err != nil {
		return
	}

	rec.Status = StatusSettling
	if err := e.settle(ctx, rec, authTotal); err != nil {
		e.logger.Warn("pipeline run abandoned during settlement", "record_id", rec.ID, "error", err)
		return
	}
}

// authorize runs the fixed authorization steps strictly in order and
// returns the phase's recorded total. No step can reject.
func (e *Engine) authorize(ctx context.Context, rec *TransactionRecord) (time.Duration, error) {
	var total time.Duration
	for i, step := range AuthorizationSteps() {
		wait := step.Cost*time.Duration(e.cfg.PacingMultiplier) + e.cfg.PacingFloor
		if err := e.clock.Sleep(ctx, wait); err != nil {
			return 0, err
		}

		detail := step.Detail
		if step.Name == StepCreditCheck {
			detail = creditCheckDetail(e.cfg.CreditLimitCents, rec.FinalAmount)
		}

		total += step.Cost
		e.recordStep(PhaseAuthorization, step.Name, step.Cost)
		e.publishStep(ctx, &StepEvent{
			RecordID:   rec.ID,
			Phase:      PhaseAuthorization,
			Step:       step.Name,
			Label:      step.Label,
			Detail:     detail,
			Index:      i,
			Duration:   step.Cost,
			PhaseTotal: total,
		})
	}

	if e.metrics != nil {
		e.metrics.RecordPipelinePhase(string(PhaseAuthorization), total.Seconds())
	}
	e.logger.Info("authorization approved",
		"record_id", rec.ID,
		"auth_total_ms", total.Milliseconds(),
	)
	return total, nil
}

// settle runs the four settlement steps: treasury check, preparation,
// broadcast and confirmation. Broadcast uses the ledger adapter when one
// is configured and otherwise (or on any adapter failure, under the
// default policy) falls back to a synthetic transaction id.
func (e *Engine) settle(ctx context.Context, rec *TransactionRecord, authTotal time.Duration) error {
	steps := SettlementSteps()
	var total time.Duration

	// Treasury check and preparation are fixed-cost waits.
	for i := 0; i < 2; i++ {
		step := steps[i]
		if err := e.clock.Sleep(ctx, step.Wait); err != nil {
			return err
		}
		detail := step.Detail
		if step.Name == "prepare" {
			detail = fmt.Sprintf("Recipient: %s • Amount: %s", shortAddress(e.cfg.MerchantAddress), FormatUSD(rec.FinalAmount))
		}
		total += step.Cost
		e.recordStep(PhaseSettlement, step.Name, step.Cost)
		e.publishStep(ctx, &StepEvent{
			RecordID:   rec.ID,
			Phase:      PhaseSettlement,
			Step:       step.Name,
			Label:      step.Label,
			Detail:     detail,
			Index:      i,
			Duration:   step.Cost,
			PhaseTotal: total,
		})
	}

	// Broadcast.
	txHash, synthetic, broadcastDur, err := e.broadcast(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// Strict policy: surface the ledger failure as a terminal Failed.
		rec.Status = StatusFailed
		if e.metrics != nil {
			e.metrics.RecordPipelineRun("failed")
		}
		e.logger.Error("settlement failed",
			"record_id", rec.ID,
			"error", err,
		)
		e.publishSettlement(ctx, rec, false, authTotal, total+broadcastDur)
		return nil
	}
	total += broadcastDur
	e.recordStep(PhaseSettlement, StepBroadcast, broadcastDur)
	e.publishStep(ctx, &StepEvent{
		RecordID:   rec.ID,
		Phase:      PhaseSettlement,
		Step:       StepBroadcast,
		Label:      steps[2].Label,
		Detail:     fmt.Sprintf("Status: confirmed • Synthetic: %t", synthetic),
		Index:      2,
		Duration:   broadcastDur,
		PhaseTotal: total,
	})

	// Confirmation: fixed wait, then a synthetic block number.
	confirmStart := e.clock.Now()
	if err := e.clock.Sleep(ctx, steps[3].Wait); err != nil {
		return err
	}
	confirmDur := e.clock.Now().Sub(confirmStart)
	blockNumber := syntheticBlockNumber()
	total += confirmDur
	e.recordStep(PhaseSettlement, StepConfirm, confirmDur)
	e.publishStep(ctx, &StepEvent{
		RecordID:   rec.ID,
		Phase:      PhaseSettlement,
		Step:       StepConfirm,
		Label:      steps[3].Label,
		Detail:     fmt.Sprintf("Block: %d • Confirmations: 1", blockNumber),
		Index:      3,
		Duration:   confirmDur,
		PhaseTotal: total,
	})

	// Terminal transition: txHash and settledAt are assigned together with
	// the Settled status so the txHash-iff-settled invariant always holds.
	rec.TxHash = txHash
	rec.BlockNumber = blockNumber
	rec.SettledAt = e.clock.Now()
	rec.Status = StatusSettled

	if e.metrics != nil {
		e.metrics.RecordPipelineRun("settled")
		e.metrics.RecordPipelinePhase(string(PhaseSettlement), total.Seconds())
	}
	e.logger.Info("settlement complete",
		"record_id", rec.ID,
		"tx_hash", txHash,
		"block_number", blockNumber,
		"synthetic", synthetic,
		"settle_total_ms", total.Milliseconds(),
	)
	e.publishSettlement(ctx, rec, synthetic, authTotal, total)

	// Give observers time to render the terminal state before the
	// consumer reacts.
	if err := e.clock.Sleep(ctx, e.cfg.CompletionDelay); err != nil {
		return err
	}
	if e.onSettlement != nil {
		e.onSettlement(rec)
	}
	return nil
}

// broadcast attempts one real transfer and reports the transaction id, a
// synthetic flag, and the step duration. Under the default policy any
// adapter failure degrades to a synthetic id; under the strict policy the
// error is returned instead.
func (e *Engine) broadcast(ctx context.Context, rec *TransactionRecord) (string, bool, time.Duration, error) {
	start := e.clock.Now()

	var submitErr error
	if e.ledger == nil {
		submitErr = ledger.ErrUnavailable
	} else {
		lamports := uint64(rec.FinalAmount) * uint64(e.cfg.LamportsPerCent)
		res, err := e.ledger.SubmitTransfer(ctx, lamports, e.cfg.MerchantAddress)
		if err == nil {
			if e.metrics != nil {
				e.metrics.RecordBroadcast("ledger")
			}
			return res.TxID, false, res.Duration, nil
		}
		submitErr = err
	}

	if ctx.Err() != nil {
		return "", false, e.clock.Now().Sub(start), ctx.Err()
	}
	if e.cfg.FailOnLedgerError {
		return "", false, e.clock.Now().Sub(start), submitErr
	}

	// Fallback: every failure kind degrades to a simulated broadcast with
	// a locally generated transaction id.
	e.logger.Warn("ledger submission unavailable or failed, falling back to synthetic txid",
		"record_id", rec.ID,
		"error", submitErr,
	)
	if e.metrics != nil {
		e.metrics.RecordBroadcast("synthetic")
	}
	if err := e.clock.Sleep(ctx, e.cfg.FallbackDelay); err != nil {
		return "", false, e.clock.Now().Sub(start), err
	}
	return SyntheticTxHash(), true, e.clock.Now().Sub(start), nil
}

func (e *Engine) recordStep(phase Phase, step string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordPipelineStep(string(phase), step, d.Seconds())
	}
}

func (e *Engine) publishStep(ctx context.Context, event *StepEvent) {
	if e.events == nil {
		return
	}
	event.PublishedAt = e.clock.Now()
	if err := e.events.PublishStep(ctx, event); err != nil {
		e.logger.Warn("failed to publish step event",
			"record_id", event.RecordID,
			"step", event.Step,
			"error", err,
		)
	}
}

func (e *Engine) publishSettlement(ctx context.Context, rec *TransactionRecord, synthetic bool, authTotal, settleTotal time.Duration) {
	if e.events == nil {
		return
	}
	event := &SettlementEvent{
		RecordID:       rec.ID,
		ItemLabel:      rec.ItemLabel,
		FinalAmount:    rec.FinalAmount,
		Status:         rec.Status,
		TxHash:         rec.TxHash,
		BlockNumber:    rec.BlockNumber,
		Synthetic:      synthetic,
		AuthDuration:   authTotal,
		SettleDuration: settleTotal,
		SettledAt:      rec.SettledAt,
		PublishedAt:    e.clock.Now(),
	}
	if rec.Status == StatusSettled {
		event.Confirmations = 1
	}
	if err := e.events.PublishSettlement(ctx, event); err != nil {
		e.logger.Warn("failed to publish settlement event",
			"record_id", rec.ID,
			"error", err,
		)
	}
}

// SyntheticTxHash generates a locally unique pseudo transaction id: "0x"
// followed by 64 lowercase hex characters.
func SyntheticTxHash() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "0x" + hex.EncodeToString(b[:])
}

// syntheticBlockNumber picks a plausible block height for the simulated
// confirmation step.
func syntheticBlockNumber() int64 {
	return 12_000_000 + mathrand.Int64N(1_000_000)
}

func shortAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-6:]
}
