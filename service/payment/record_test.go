package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_Valid(t *testing.T) {
	rec, err := NewRecord("Legendary Skin", 2000, 60)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Legendary Skin", rec.ItemLabel)
	assert.Equal(t, int64(2000), rec.OriginalAmount)
	assert.Equal(t, int64(60), rec.Discount)
	assert.Equal(t, int64(1940), rec.FinalAmount)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Empty(t, rec.TxHash)
	assert.Zero(t, rec.BlockNumber)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, rec.SettledAt.IsZero())
}

func TestNewRecord_UniqueIDs(t *testing.T) {
	a, err := NewRecord("Battle Pass", 1000, 30)
	require.NoError(t, err)
	b, err := NewRecord("Battle Pass", 1000, 30)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewRecord_InvalidPrice(t *testing.T) {
	for _, price := range []int64{0, -100} {
		rec, err := NewRecord("Free Item", price, 0)
		require.Error(t, err)
		assert.Nil(t, rec)
		assert.True(t, errors.Is(err, ErrInvalidItem))
	}
}

func TestNewRecord_InvalidDiscount(t *testing.T) {
	// Negative discount
	rec, err := NewRecord("Gem Pack", 499, -1)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrInvalidDiscount))

	// Discount equal to price leaves a zero final amount
	rec, err = NewRecord("Gem Pack", 499, 499)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrInvalidDiscount))

	// Discount over the price
	rec, err = NewRecord("Gem Pack", 499, 600)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrInvalidDiscount))
}

func TestDiscountFor(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		rate  float64
		want  int64
	}{
		{"twenty dollars at 3%", 2000, 0.03, 60},
		{"$4.99 rounds 14.97 up to 15", 499, 0.03, 15},
		{"ten dollars at 3%", 1000, 0.03, 30},
		{"$14.99 rounds 44.97 up to 45", 1499, 0.03, 45},
		{"zero rate", 2000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiscountFor(tt.price, tt.rate))
		})
	}
}

func TestScenario_TwentyDollarItem(t *testing.T) {
	discount := DiscountFor(2000, 0.03)
	rec, err := NewRecord("Legendary Skin", 2000, discount)
	require.NoError(t, err)

	assert.Equal(t, int64(60), rec.Discount)
	assert.Equal(t, int64(1940), rec.FinalAmount)
	assert.Equal(t, "$19.40", FormatUSD(rec.FinalAmount))
}

func TestScenario_FourNinetyNineItem(t *testing.T) {
	discount := DiscountFor(499, 0.03)
	rec, err := NewRecord("Gem Pack", 499, discount)
	require.NoError(t, err)

	assert.Equal(t, int64(15), rec.Discount)
	assert.Equal(t, int64(484), rec.FinalAmount)
	assert.Equal(t, "$4.84", FormatUSD(rec.FinalAmount))
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAuthorizing.Terminal())
	assert.False(t, StatusSettling.Terminal())
	assert.True(t, StatusSettled.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$19.40", FormatUSD(1940))
	assert.Equal(t, "$4.84", FormatUSD(484))
	assert.Equal(t, "$0.05", FormatUSD(5))
	assert.Equal(t, "$500.00", FormatUSD(50000))
	assert.Equal(t, "-$1.25", FormatUSD(-125))
}
