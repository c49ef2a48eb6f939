package listings_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

func validParams() listings.CreateListingParams {
	return listings.CreateListingParams{
		ID:           "l-1",
		Host:         "h-1",
		Title:        " Loft ",
		NightlyPrice: money.Must(15000, "USD"),
		CleaningFee:  money.Must(5000, "USD"),
		MaxGuests:    4,
		MinNights:    1,
		MaxNights:    30,
		Policy:       listings.PolicyModerate,
	}
}

func TestNewListingDefaults(t *testing.T) {
	params := validParams()
	params.Policy = ""
	params.MinNights = 0
	params.CleaningFee = money.Money{}

	l, err := listings.NewListing(params)
	require.NoError(t, err)
	assert.Equal(t, "Loft", l.Title)
	assert.Equal(t, listings.PolicyModerate, l.Policy)
	assert.Equal(t, 1, l.MinNights)
	assert.Equal(t, money.Zero("USD"), l.CleaningFee)
	assert.Equal(t, "USD", l.Currency())
}

func TestNewListingValidation(t *testing.T) {
	cases := map[string]func(p *listings.CreateListingParams){
		"missing id":        func(p *listings.CreateListingParams) { p.ID = "" },
		"zero price":        func(p *listings.CreateListingParams) { p.NightlyPrice = money.Must(0, "USD") },
		"currency mismatch": func(p *listings.CreateListingParams) { p.CleaningFee = money.Must(10, "EUR") },
		"discount over 100": func(p *listings.CreateListingParams) { p.WeeklyDiscountPercent = decimal.NewFromInt(101) },
		"no guests":         func(p *listings.CreateListingParams) { p.MaxGuests = 0 },
		"nights inverted":   func(p *listings.CreateListingParams) { p.MinNights = 40 },
		"unknown policy":    func(p *listings.CreateListingParams) { p.Policy = "lenient" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := validParams()
			mutate(&params)
			_, err := listings.NewListing(params)
			require.Error(t, err)
			assert.True(t, domainerr.IsValidation(err))
		})
	}
}

func TestParsePolicyTier(t *testing.T) {
	tier, err := listings.ParsePolicyTier(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, listings.PolicyStrict, tier)

	_, err = listings.ParsePolicyTier("super_strict")
	assert.True(t, domainerr.IsValidation(err))
}
