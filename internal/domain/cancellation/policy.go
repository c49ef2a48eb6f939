package cancellation

import (
	"time"

	"github.com/shopspring/decimal"

	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

const day = 24 * time.Hour

// Tier names the refund bracket a cancellation fell into.
type Tier string

const (
	TierFull     Tier = "full_refund"
	TierPartial  Tier = "partial_refund"
	TierNone     Tier = "no_refund"
	TierProrated Tier = "long_term_prorated"
)

// LongTermMinNights is the stay length from which the long-term rules apply.
const LongTermMinNights = 28

// LongTermNotice is the notice a not-yet-started month needs to be refundable.
const LongTermNotice = 30 * day

// thresholds are inclusive: notice >= full gets the full tier, notice >= partial
// gets the partial tier.
type thresholds struct {
	full    time.Duration
	partial time.Duration
}

var table = map[listings.PolicyTier]thresholds{
	listings.PolicyFlexible: {full: day, partial: 0},
	listings.PolicyModerate: {full: 5 * day, partial: 2 * day},
	listings.PolicyStrict:   {full: 14 * day, partial: 7 * day},
}

var partialPercent = decimal.NewFromInt(50)

type Input struct {
	Policy      listings.PolicyTier
	CheckIn     time.Time
	CheckOut    time.Time
	CancelledAt time.Time
	Pricing     pricing.PriceBreakdown
	// Extenuating bypasses the table with a full refund and no host penalty.
	Extenuating bool
	// HostInitiated refunds the guest in full; the host is penalized separately.
	HostInitiated bool
}

// RefundSplit divides the booking total. GuestRefund + HostPayout + Retained
// always equals the total of the priced snapshot.
type RefundSplit struct {
	Tier             Tier        `json:"tier" bson:"tier"`
	GuestRefund      money.Money `json:"guest_refund" bson:"guest_refund"`
	HostPayout       money.Money `json:"host_payout" bson:"host_payout"`
	Retained         money.Money `json:"retained" bson:"retained"`
	RefundableNights int         `json:"refundable_nights,omitempty" bson:"refundable_nights,omitempty"`
	Override         bool        `json:"override" bson:"override"`
}

// Engine maps a policy tier and cancellation time onto a RefundSplit.
type Engine struct{}

func (Engine) Evaluate(in Input) (RefundSplit, error) {
	if err := in.Pricing.Validate(); err != nil {
		return RefundSplit{}, domainerr.NewValidationError("pricing", err.Error())
	}
	if in.Extenuating {
		split, err := full(in.Pricing)
		split.Override = true
		return split, err
	}
	if in.HostInitiated {
		return full(in.Pricing)
	}
	notice := in.CheckIn.Sub(in.CancelledAt)

	policy := in.Policy
	if policy == listings.PolicyLongTerm {
		if in.Pricing.Nights >= LongTermMinNights {
			return longTerm(in, notice)
		}
		policy = listings.PolicyStrict
	}
	th, ok := table[policy]
	if !ok {
		return RefundSplit{}, domainerr.NewValidationError("cancellation_policy", "unknown policy tier "+string(in.Policy))
	}
	switch {
	case notice >= th.full:
		return full(in.Pricing)
	case notice >= th.partial:
		return partial(in.Pricing)
	default:
		return none(in.Pricing)
	}
}

// Deadlines reports the last instants that still qualify for the full and the
// partial tier. Zero values mean the tier does not exist for the policy.
func Deadlines(policy listings.PolicyTier, checkIn time.Time) (fullUntil, partialUntil time.Time) {
	if policy == listings.PolicyLongTerm {
		return checkIn.Add(-LongTermNotice), time.Time{}
	}
	th, ok := table[policy]
	if !ok {
		return time.Time{}, time.Time{}
	}
	return checkIn.Add(-th.full), checkIn.Add(-th.partial)
}

func full(p pricing.PriceBreakdown) (RefundSplit, error) {
	cur := p.Currency()
	return RefundSplit{
		Tier:        TierFull,
		GuestRefund: p.Total,
		HostPayout:  money.Zero(cur),
		Retained:    money.Zero(cur),
	}, nil
}

func partial(p pricing.PriceBreakdown) (RefundSplit, error) {
	accommodation, err := p.Accommodation()
	if err != nil {
		return RefundSplit{}, err
	}
	refund, err := accommodation.Percent(partialPercent)
	if err != nil {
		return RefundSplit{}, err
	}
	payout, err := accommodation.Sub(refund)
	if err != nil {
		return RefundSplit{}, err
	}
	retained, err := p.CleaningFee.Add(p.GuestServiceFee)
	if err != nil {
		return RefundSplit{}, err
	}
	return RefundSplit{Tier: TierPartial, GuestRefund: refund, HostPayout: payout, Retained: retained}, nil
}

func none(p pricing.PriceBreakdown) (RefundSplit, error) {
	accommodation, err := p.Accommodation()
	if err != nil {
		return RefundSplit{}, err
	}
	payout, err := accommodation.Add(p.CleaningFee)
	if err != nil {
		return RefundSplit{}, err
	}
	return RefundSplit{
		Tier:        TierNone,
		GuestRefund: money.Zero(p.Currency()),
		HostPayout:  payout,
		Retained:    p.GuestServiceFee,
	}, nil
}

// longTerm cuts the stay into calendar months from check-in. The month in
// progress and any month starting within LongTermNotice of the cancellation are
// kept by the host; later months are refunded pro rata by nights. A check-in
// late in the month starts later months on their last day instead (Jan 31 is
// followed by Feb 28).
func longTerm(in Input, notice time.Duration) (RefundSplit, error) {
	if notice >= LongTermNotice {
		return full(in.Pricing)
	}
	earliest := in.CancelledAt.Add(LongTermNotice)
	var refundableFrom time.Time
	for k := 1; ; k++ {
		start := addMonths(in.CheckIn, k)
		if !start.Before(in.CheckOut) {
			break
		}
		if !start.Before(earliest) {
			refundableFrom = start
			break
		}
	}
	refundable := 0
	if !refundableFrom.IsZero() {
		refundable = daterange.DateRange{CheckIn: refundableFrom, CheckOut: in.CheckOut}.Nights()
	}
	if refundable == 0 {
		return none(in.Pricing)
	}

	p := in.Pricing
	accommodation, err := p.Accommodation()
	if err != nil {
		return RefundSplit{}, err
	}
	refund := accommodation.Prorate(int64(refundable), int64(p.Nights))
	kept, err := accommodation.Sub(refund)
	if err != nil {
		return RefundSplit{}, err
	}
	payout, err := kept.Add(p.CleaningFee)
	if err != nil {
		return RefundSplit{}, err
	}
	return RefundSplit{
		Tier:             TierProrated,
		GuestRefund:      refund,
		HostPayout:       payout,
		Retained:         p.GuestServiceFee,
		RefundableNights: refundable,
	}, nil
}

// addMonths is t moved k calendar months ahead, clamped to the last day of the
// target month.
func addMonths(t time.Time, k int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(k), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}
