package store

import (
	"testing"
	"time"

	"github.com/brojonat/cardflow/service/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settledRecord(t *testing.T, label string, price, discount int64, settleAfter time.Duration) *payment.TransactionRecord {
	t.Helper()
	rec, err := payment.NewRecord(label, price, discount)
	require.NoError(t, err)
	rec.Status = payment.StatusSettled
	rec.TxHash = payment.SyntheticTxHash()
	rec.BlockNumber = 12_345_678
	rec.SettledAt = rec.CreatedAt.Add(settleAfter)
	return rec
}

func TestRecordSettlement_UpdatesBalances(t *testing.T) {
	st := NewStore(5_000_000)

	rec := settledRecord(t, "Legendary Skin", 2000, 60, 4*time.Second)
	st.RecordSettlement(rec)

	summary := st.Summary()
	assert.Equal(t, int64(5_000_000-1940), summary.TreasuryBalance)
	assert.Equal(t, int64(1940), summary.MerchantBalance)
	assert.Equal(t, 1, summary.SalesCount)
}

func TestRecordSettlement_DeduplicatesByID(t *testing.T) {
	st := NewStore(100_000)

	rec := settledRecord(t, "Battle Pass", 1000, 30, time.Second)
	st.RecordSettlement(rec)
	st.RecordSettlement(rec)

	summary := st.Summary()
	assert.Equal(t, 1, summary.SalesCount)
	assert.Equal(t, int64(970), summary.MerchantBalance)
}

func TestRecordSettlement_IgnoresNonSettled(t *testing.T) {
	st := NewStore(100_000)

	rec, err := payment.NewRecord("Gem Pack", 499, 15)
	require.NoError(t, err)
	st.RecordSettlement(rec) // still pending

	rec.Status = payment.StatusFailed
	st.RecordSettlement(rec)

	st.RecordSettlement(nil)

	assert.Equal(t, 0, st.Count())
	assert.Equal(t, int64(100_000), st.Summary().TreasuryBalance)
}

func TestGet(t *testing.T) {
	st := NewStore(100_000)
	rec := settledRecord(t, "Starter Bundle", 1499, 45, time.Second)
	st.RecordSettlement(rec)

	got, err := st.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = st.Get("missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirstWithPagination(t *testing.T) {
	st := NewStore(1_000_000)

	first := settledRecord(t, "Battle Pass", 1000, 30, time.Second)
	second := settledRecord(t, "Gem Pack", 499, 15, time.Second)
	third := settledRecord(t, "Legendary Skin", 2000, 60, time.Second)
	st.RecordSettlement(first)
	st.RecordSettlement(second)
	st.RecordSettlement(third)

	all := st.List(10, 0)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)

	page := st.List(1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	assert.Empty(t, st.List(10, 5))
}

func TestSummary_FeeSavings(t *testing.T) {
	st := NewStore(1_000_000)

	// $19.40: traditional fee 56 + 30 = 86 cents, platform fee 10 cents
	st.RecordSettlement(settledRecord(t, "Legendary Skin", 2000, 60, 4*time.Second))

	summary := st.Summary()
	assert.Equal(t, int64(76), summary.FeesSaved)

	// $4.84: traditional fee 14 + 30 = 44 cents, platform fee 2 cents
	st.RecordSettlement(settledRecord(t, "Gem Pack", 499, 15, 6*time.Second))

	summary = st.Summary()
	assert.Equal(t, int64(76+42), summary.FeesSaved)
	assert.Equal(t, 5*time.Second, summary.AvgSettlement)
}

func TestSummary_EmptyStore(t *testing.T) {
	st := NewStore(5_000_000)

	summary := st.Summary()
	assert.Equal(t, int64(5_000_000), summary.TreasuryBalance)
	assert.Zero(t, summary.MerchantBalance)
	assert.Zero(t, summary.SalesCount)
	assert.Zero(t, summary.FeesSaved)
	assert.Zero(t, summary.AvgSettlement)
}
