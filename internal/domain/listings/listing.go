package listings

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

type ListingID string
type HostID string

// PolicyTier selects the cancellation rules applied to bookings of a listing.
type PolicyTier string

const (
	PolicyFlexible PolicyTier = "flexible"
	PolicyModerate PolicyTier = "moderate"
	PolicyStrict   PolicyTier = "strict"
	PolicyLongTerm PolicyTier = "long_term"
)

func (p PolicyTier) Valid() bool {
	switch p {
	case PolicyFlexible, PolicyModerate, PolicyStrict, PolicyLongTerm:
		return true
	}
	return false
}

// ParsePolicyTier accepts the canonical names case-insensitively.
func ParsePolicyTier(raw string) (PolicyTier, error) {
	tier := PolicyTier(strings.ToLower(strings.TrimSpace(raw)))
	if !tier.Valid() {
		return "", domainerr.NewValidationError("cancellation_policy", "unknown policy tier "+raw)
	}
	return tier, nil
}

// Listing is owned by the catalog; the booking engine only reads it.
type Listing struct {
	ID                     ListingID
	Host                   HostID
	Title                  string
	NightlyPrice           money.Money
	CleaningFee            money.Money
	WeeklyDiscountPercent  decimal.Decimal
	MonthlyDiscountPercent decimal.Decimal
	MaxGuests              int
	MinNights              int
	MaxNights              int
	Policy                 PolicyTier
	InstantBook            bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Currency is the currency every amount of the listing is expressed in.
func (l *Listing) Currency() string {
	return l.NightlyPrice.Currency
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
}

type CreateListingParams struct {
	ID                     ListingID
	Host                   HostID
	Title                  string
	NightlyPrice           money.Money
	CleaningFee            money.Money
	WeeklyDiscountPercent  decimal.Decimal
	MonthlyDiscountPercent decimal.Decimal
	MaxGuests              int
	MinNights              int
	MaxNights              int
	Policy                 PolicyTier
	InstantBook            bool
	Now                    time.Time
}

var hundred = decimal.NewFromInt(100)

// NewListing validates params and returns an immutable listing value.
func NewListing(params CreateListingParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, domainerr.NewValidationError("id", "is required")
	}
	if strings.TrimSpace(string(params.Host)) == "" {
		return nil, domainerr.NewValidationError("host", "is required")
	}
	if params.NightlyPrice.Amount <= 0 {
		return nil, domainerr.NewValidationError("nightly_price", "must be positive")
	}
	if len(params.NightlyPrice.Currency) != 3 {
		return nil, domainerr.NewValidationError("currency", "must be an ISO-4217 code")
	}
	cleaning := params.CleaningFee
	if cleaning.Currency == "" {
		cleaning = money.Zero(params.NightlyPrice.Currency)
	}
	if cleaning.Currency != params.NightlyPrice.Currency {
		return nil, domainerr.NewValidationError("cleaning_fee", "currency must match nightly price")
	}
	if cleaning.IsNegative() {
		return nil, domainerr.NewValidationError("cleaning_fee", "must be non-negative")
	}
	if !validPercent(params.WeeklyDiscountPercent) {
		return nil, domainerr.NewValidationError("weekly_discount", "must be between 0 and 100")
	}
	if !validPercent(params.MonthlyDiscountPercent) {
		return nil, domainerr.NewValidationError("monthly_discount", "must be between 0 and 100")
	}
	if params.MaxGuests < 1 {
		return nil, domainerr.NewValidationError("max_guests", "must be at least 1")
	}
	minNights := params.MinNights
	if minNights < 1 {
		minNights = 1
	}
	if params.MaxNights != 0 && minNights > params.MaxNights {
		return nil, domainerr.NewValidationError("max_nights", "min nights must be <= max nights")
	}
	policy := params.Policy
	if policy == "" {
		policy = PolicyModerate
	}
	if !policy.Valid() {
		return nil, domainerr.NewValidationError("cancellation_policy", "unknown policy tier "+string(policy))
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Listing{
		ID:                     params.ID,
		Host:                   params.Host,
		Title:                  strings.TrimSpace(params.Title),
		NightlyPrice:           params.NightlyPrice,
		CleaningFee:            cleaning,
		WeeklyDiscountPercent:  params.WeeklyDiscountPercent,
		MonthlyDiscountPercent: params.MonthlyDiscountPercent,
		MaxGuests:              params.MaxGuests,
		MinNights:              minNights,
		MaxNights:              params.MaxNights,
		Policy:                 policy,
		InstantBook:            params.InstantBook,
		CreatedAt:              now.UTC(),
		UpdatedAt:              now.UTC(),
	}, nil
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && !p.GreaterThan(hundred)
}
