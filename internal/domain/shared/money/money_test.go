package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/domain/shared/money"
)

func TestNewNormalizesCurrency(t *testing.T) {
	m, err := money.New(100, "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", m.Currency)

	_, err = money.New(100, "US")
	assert.ErrorIs(t, err, money.ErrInvalidCurrency)
}

func TestAddRejectsCurrencyMismatch(t *testing.T) {
	_, err := money.Must(1, "USD").Add(money.Must(1, "EUR"))
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestPercentRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount int64
		pct    string
		want   int64
	}{
		{amount: 75000, pct: "10", want: 7500},
		{amount: 12345, pct: "14", want: 1728},
		{amount: 105, pct: "50", want: 53},
		{amount: 999, pct: "0", want: 0},
		{amount: 999, pct: "100", want: 999},
	}
	for _, tc := range cases {
		got, err := money.Must(tc.amount, "USD").Percent(decimal.RequireFromString(tc.pct))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Amount, "%d * %s%%", tc.amount, tc.pct)
	}

	_, err := money.Must(100, "USD").Percent(decimal.NewFromInt(101))
	assert.ErrorIs(t, err, money.ErrInvalidPercent)
}

func TestProrate(t *testing.T) {
	m := money.Must(10000, "USD")
	assert.Equal(t, int64(3333), m.Prorate(1, 3).Amount)
	assert.Equal(t, int64(10000), m.Prorate(5, 3).Amount)
	assert.Equal(t, int64(0), m.Prorate(0, 3).Amount)
}

func TestSum(t *testing.T) {
	total, err := money.Must(100, "USD").Sum(money.Must(50, "USD"), money.Must(25, "USD"))
	require.NoError(t, err)
	assert.Equal(t, int64(175), total.Amount)
}
