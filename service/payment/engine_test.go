package payment

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/cardflow/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// fakeClock advances instantly and records every requested sleep so tests
// can assert the pacing schedule without wall time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) recordedSleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu          sync.Mutex
	steps       []StepEvent
	settlements []SettlementEvent
}

func (p *capturePublisher) PublishStep(ctx context.Context, event *StepEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, *event)
	return nil
}

func (p *capturePublisher) PublishSettlement(ctx context.Context, event *SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settlements = append(p.settlements, *event)
	return nil
}

func (p *capturePublisher) stepEvents() []StepEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StepEvent, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *capturePublisher) settlementEvents() []SettlementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SettlementEvent, len(p.settlements))
	copy(out, p.settlements)
	return out
}

// fakeAdapter is a canned-response ledger adapter.
type fakeAdapter struct {
	result *ledger.TransferResult
	err    error
}

func (a *fakeAdapter) SubmitTransfer(ctx context.Context, lamports uint64, recipient string) (*ledger.TransferResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		MerchantAddress: "8dHEEnq5UWDsHLyIsntMerchantAddr11111111111",
	}
}

func newTestEngine(cfg Config, adapter ledger.Adapter, events EventPublisher) (*Engine, *fakeClock) {
	clock := newFakeClock()
	engine := NewEngine(cfg, adapter, events, clock, nil, testLogger())
	return engine, clock
}

func mustRecord(t *testing.T, label string, price, discount int64) *TransactionRecord {
	t.Helper()
	rec, err := NewRecord(label, price, discount)
	require.NoError(t, err)
	return rec
}

func awaitSettlement(t *testing.T, done <-chan *TransactionRecord) *TransactionRecord {
	t.Helper()
	select {
	case rec := <-done:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settlement callback")
		return nil
	}
}

func TestEngine_SettlesWithoutAdapter(t *testing.T) {
	engine, _ := newTestEngine(testConfig(), nil, nil)

	done := make(chan *TransactionRecord, 1)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		done <- rec
	})

	rec := mustRecord(t, "Legendary Skin", 2000, 60)
	require.True(t, engine.Start(context.Background(), rec))

	settled := awaitSettlement(t, done)
	assert.Equal(t, StatusSettled, settled.Status)
	assert.Regexp(t, txHashPattern, settled.TxHash)
	assert.GreaterOrEqual(t, settled.BlockNumber, int64(12_000_000))
	assert.Less(t, settled.BlockNumber, int64(13_000_000))
	assert.False(t, settled.SettledAt.IsZero())
	assert.Equal(t, int64(1940), settled.FinalAmount)

	// Terminal records cannot be restarted
	assert.False(t, engine.Start(context.Background(), settled))
}

func TestEngine_SleepPacing(t *testing.T) {
	engine, clock := newTestEngine(testConfig(), nil, nil)

	done := make(chan *TransactionRecord, 1)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		done <- rec
	})

	rec := mustRecord(t, "Battle Pass", 1000, 30)
	require.True(t, engine.Start(context.Background(), rec))
	awaitSettlement(t, done)

	// Authorization: cost*3 + 200ms per step, then the inter-phase pause,
	// two fixed settlement waits, the synthetic fallback delay, the
	// confirmation wait, and finally the completion delay.
	want := []time.Duration{
		236 * time.Millisecond,
		335 * time.Millisecond,
		284 * time.Millisecond,
		245 * time.Millisecond,
		401 * time.Millisecond,
		500 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
		1500 * time.Millisecond,
		800 * time.Millisecond,
		2 * time.Second,
	}
	assert.Equal(t, want, clock.recordedSleeps())
}

func TestEngine_StepOrdering(t *testing.T) {
	events := &capturePublisher{}
	engine, _ := newTestEngine(testConfig(), nil, events)

	done := make(chan *TransactionRecord, 1)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		done <- rec
	})

	rec := mustRecord(t, "Gem Pack", 499, 15)
	require.True(t, engine.Start(context.Background(), rec))
	awaitSettlement(t, done)

	steps := events.stepEvents()
	require.Len(t, steps, 9)

	wantAuth := []string{"authentication", "credit-check", "fraud-screen", "kyc-aml", "issuer-approval"}
	for i, name := range wantAuth {
		assert.Equal(t, PhaseAuthorization, steps[i].Phase)
		assert.Equal(t, name, steps[i].Step)
		assert.Equal(t, i, steps[i].Index)
		assert.Equal(t, rec.ID, steps[i].RecordID)
	}

	wantSettle := []string{"treasury-check", "prepare", StepBroadcast, StepConfirm}
	for i, name := range wantSettle {
		assert.Equal(t, PhaseSettlement, steps[5+i].Phase)
		assert.Equal(t, name, steps[5+i].Step)
		assert.Equal(t, i, steps[5+i].Index)
	}

	// Phase totals are monotonically non-decreasing within each phase
	for i := 1; i < 5; i++ {
		assert.GreaterOrEqual(t, steps[i].PhaseTotal, steps[i-1].PhaseTotal)
	}
	for i := 6; i < 9; i++ {
		assert.GreaterOrEqual(t, steps[i].PhaseTotal, steps[i-1].PhaseTotal)
	}

	// The authorization phase total is the sum of the fixed step costs
	assert.Equal(t, 167*time.Millisecond, steps[4].PhaseTotal)

	// The credit-check detail is derived from the record
	assert.Contains(t, steps[1].Detail, "$500.00")

	// Exactly one settlement event, terminal and synthetic
	settlements := events.settlementEvents()
	require.Len(t, settlements, 1)
	assert.Equal(t, StatusSettled, settlements[0].Status)
	assert.True(t, settlements[0].Synthetic)
	assert.Equal(t, 1, settlements[0].Confirmations)
	assert.Regexp(t, txHashPattern, settlements[0].TxHash)
}

func TestEngine_DoubleStartIsNoOp(t *testing.T) {
	engine, _ := newTestEngine(testConfig(), nil, nil)

	var mu sync.Mutex
	callbacks := 0
	done := make(chan *TransactionRecord, 2)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		mu.Lock()
		callbacks++
		mu.Unlock()
		done <- rec
	})

	rec := mustRecord(t, "Starter Bundle", 1499, 45)

	first := engine.Start(context.Background(), rec)
	second := engine.Start(context.Background(), rec)
	assert.True(t, first)
	assert.False(t, second)

	awaitSettlement(t, done)

	// Give a racing second run time to surface if the guard failed
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, callbacks)
}

func TestEngine_StartNonPendingRecord(t *testing.T) {
	engine, _ := newTestEngine(testConfig(), nil, nil)

	rec := mustRecord(t, "Battle Pass", 1000, 30)
	rec.Status = StatusFailed

	assert.False(t, engine.Start(context.Background(), rec))
}

func TestEngine_LedgerSuccess(t *testing.T) {
	adapter := &fakeAdapter{
		result: &ledger.TransferResult{
			TxID:     "5K3vJx7yQ8rT2mWnP4sD6hF9gB1cA8eL5pZ3oY7uI2xN",
			Duration: 42 * time.Millisecond,
		},
	}
	events := &capturePublisher{}
	engine, _ := newTestEngine(testConfig(), adapter, events)

	done := make(chan *TransactionRecord, 1)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		done <- rec
	})

	rec := mustRecord(t, "Legendary Skin", 2000, 60)
	require.True(t, engine.Start(context.Background(), rec))

	settled := awaitSettlement(t, done)
	assert.Equal(t, StatusSettled, settled.Status)
	assert.Equal(t, adapter.result.TxID, settled.TxHash)

	settlements := events.settlementEvents()
	require.Len(t, settlements, 1)
	assert.False(t, settlements[0].Synthetic)
}

func TestEngine_FallbackOnLedgerFailure(t *testing.T) {
	for _, ledgerErr := range []error{ledger.ErrUnavailable, ledger.ErrRejected, ledger.ErrTimeout} {
		t.Run(ledgerErr.Error(), func(t *testing.T) {
			events := &capturePublisher{}
			engine, _ := newTestEngine(testConfig(), &fakeAdapter{err: ledgerErr}, events)

			done := make(chan *TransactionRecord, 1)
			engine.SetSettlementCallback(func(rec *TransactionRecord) {
				done <- rec
			})

			rec := mustRecord(t, "Gem Pack", 499, 15)
			require.True(t, engine.Start(context.Background(), rec))

			settled := awaitSettlement(t, done)
			assert.Equal(t, StatusSettled, settled.Status)
			assert.Regexp(t, txHashPattern, settled.TxHash)

			settlements := events.settlementEvents()
			require.Len(t, settlements, 1)
			assert.True(t, settlements[0].Synthetic)
		})
	}
}

func TestEngine_StrictPolicyFailsRun(t *testing.T) {
	cfg := testConfig()
	cfg.FailOnLedgerError = true

	events := &capturePublisher{}
	engine, _ := newTestEngine(cfg, &fakeAdapter{err: ledger.ErrRejected}, events)

	callback := make(chan *TransactionRecord, 1)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		callback <- rec
	})

	rec := mustRecord(t, "Battle Pass", 1000, 30)
	require.True(t, engine.Start(context.Background(), rec))

	// The failed run still publishes a terminal settlement event
	require.Eventually(t, func() bool {
		return len(events.settlementEvents()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	settlements := events.settlementEvents()
	assert.Equal(t, StatusFailed, settlements[0].Status)
	assert.Empty(t, settlements[0].TxHash)
	assert.Zero(t, settlements[0].Confirmations)

	// No completion callback for a failed run
	select {
	case <-callback:
		t.Fatal("callback fired for a failed run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngine_CancelledContextAbandonsRun(t *testing.T) {
	events := &capturePublisher{}
	engine, _ := newTestEngine(testConfig(), nil, events)

	callback := make(chan *TransactionRecord, 1)
	engine.SetSettlementCallback(func(rec *TransactionRecord) {
		callback <- rec
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := mustRecord(t, "Battle Pass", 1000, 30)
	require.True(t, engine.Start(ctx, rec))

	select {
	case <-callback:
		t.Fatal("callback fired for an abandoned run")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, events.settlementEvents())
}

func TestSyntheticTxHash(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		hash := SyntheticTxHash()
		assert.Regexp(t, txHashPattern, hash)
		_, dup := seen[hash]
		assert.False(t, dup, "synthetic hash collision")
		seen[hash] = struct{}{}
	}
}
