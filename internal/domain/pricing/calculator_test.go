package pricing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

var checkIn = time.Date(2026, time.June, 1, 15, 0, 0, 0, time.UTC)

func nights(n int) time.Time {
	return checkIn.Add(time.Duration(n) * 24 * time.Hour)
}

func testListing(t *testing.T) *listings.Listing {
	t.Helper()
	l, err := listings.NewListing(listings.CreateListingParams{
		ID:                     "l-1",
		Host:                   "h-1",
		NightlyPrice:           money.Must(15000, "USD"),
		CleaningFee:            money.Must(5000, "USD"),
		WeeklyDiscountPercent:  decimal.NewFromInt(10),
		MonthlyDiscountPercent: decimal.NewFromInt(25),
		MaxGuests:              4,
		MinNights:              2,
		MaxNights:              60,
		Policy:                 listings.PolicyModerate,
	})
	require.NoError(t, err)
	return l
}

func testCalculator(t *testing.T) pricing.Calculator {
	t.Helper()
	fees, err := pricing.NewFeeSchedule(decimal.NewFromInt(10), decimal.NewFromInt(3))
	require.NoError(t, err)
	return pricing.NewCalculator(fees)
}

func TestQuoteShortStay(t *testing.T) {
	p, err := testCalculator(t).Quote(testListing(t), checkIn, nights(5), 2)
	require.NoError(t, err)

	assert.Equal(t, 5, p.Nights)
	assert.Equal(t, int64(75000), p.Subtotal.Amount)
	assert.Equal(t, int64(0), p.Discount.Amount)
	assert.Equal(t, int64(5000), p.CleaningFee.Amount)
	assert.Equal(t, int64(7500), p.GuestServiceFee.Amount)
	assert.Equal(t, int64(2250), p.HostServiceFee.Amount)
	assert.Equal(t, int64(87500), p.Total.Amount)
	assert.NoError(t, p.Validate())
}

func TestQuoteAppliesWeeklyAndMonthlyDiscountToSubtotalOnly(t *testing.T) {
	calc := testCalculator(t)
	l := testListing(t)

	weekly, err := calc.Quote(l, checkIn, nights(7), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(105000), weekly.Subtotal.Amount)
	assert.Equal(t, int64(10500), weekly.Discount.Amount)
	assert.Equal(t, int64(10500), weekly.GuestServiceFee.Amount, "fees are computed on the undiscounted subtotal")
	assert.Equal(t, int64(105000-10500+5000+10500), weekly.Total.Amount)

	monthly, err := calc.Quote(l, checkIn, nights(28), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(420000), monthly.Subtotal.Amount)
	assert.Equal(t, int64(105000), monthly.Discount.Amount)

	sixDays, err := calc.Quote(l, checkIn, nights(6), 1)
	require.NoError(t, err)
	assert.True(t, sixDays.Discount.IsZero())
}

func TestQuoteRoundsPartialNightsUp(t *testing.T) {
	p, err := testCalculator(t).Quote(testListing(t), checkIn, nights(2).Add(3*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Nights)
}

func TestQuoteValidation(t *testing.T) {
	calc := testCalculator(t)
	l := testListing(t)

	cases := []struct {
		name     string
		out      time.Time
		guests   int
		wantPart string
	}{
		{name: "too many guests", out: nights(3), guests: 5, wantPart: "guests"},
		{name: "no guests", out: nights(3), guests: 0, wantPart: "guests"},
		{name: "below min nights", out: nights(1), guests: 1, wantPart: "nights"},
		{name: "above max nights", out: nights(61), guests: 1, wantPart: "nights"},
		{name: "inverted range", out: checkIn.Add(-time.Hour), guests: 1, wantPart: "dates"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := calc.Quote(l, checkIn, tc.out, tc.guests)
			require.Error(t, err)
			assert.True(t, domainerr.IsValidation(err))
			assert.Contains(t, err.Error(), tc.wantPart)
		})
	}
}

func TestQuoteTotalInvariantHoldsAcrossStays(t *testing.T) {
	calc := testCalculator(t)
	l := testListing(t)
	for n := l.MinNights; n <= l.MaxNights; n++ {
		p, err := calc.Quote(l, checkIn, nights(n), 1)
		require.NoError(t, err, "nights=%d", n)
		sum := p.Subtotal.Amount - p.Discount.Amount + p.CleaningFee.Amount + p.GuestServiceFee.Amount
		assert.Equal(t, sum, p.Total.Amount, "nights=%d", n)
		assert.Positive(t, p.Total.Amount)
	}
}

func TestNewFeeScheduleRejectsOutOfRangeRates(t *testing.T) {
	_, err := pricing.NewFeeSchedule(decimal.NewFromInt(-1), decimal.Zero)
	assert.True(t, domainerr.IsValidation(err))
	_, err = pricing.NewFeeSchedule(decimal.Zero, decimal.NewFromInt(120))
	assert.True(t, domainerr.IsValidation(err))
}

func TestCompletionPayout(t *testing.T) {
	p, err := testCalculator(t).Quote(testListing(t), checkIn, nights(5), 1)
	require.NoError(t, err)
	payout, err := p.CompletionPayout()
	require.NoError(t, err)
	assert.Equal(t, int64(75000+5000-2250), payout.Amount)
}
