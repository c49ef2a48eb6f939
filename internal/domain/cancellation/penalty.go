package cancellation

import (
	"time"

	"github.com/shopspring/decimal"

	"stayengine/internal/domain/shared/money"
)

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// HostPenalty is bookkeeping attached to a host-initiated cancellation.
type HostPenalty struct {
	Exempt          bool        `json:"exempt" bson:"exempt"`
	Offense         int         `json:"offense" bson:"offense"`
	Severity        Severity    `json:"severity" bson:"severity"`
	Fee             money.Money `json:"fee" bson:"fee"`
	CalendarBlocked bool        `json:"calendar_blocked" bson:"calendar_blocked"`
	ReviewRequired  bool        `json:"review_required" bson:"review_required"`
}

type PenaltyStep struct {
	FeePercent     decimal.Decimal
	Severity       Severity
	ReviewRequired bool
}

// PenaltyPolicy escalates with the number of host cancellations inside Window.
// The last step repeats for every further offense.
type PenaltyPolicy struct {
	Window time.Duration
	Steps  []PenaltyStep
}

func DefaultPenaltyPolicy() PenaltyPolicy {
	return PenaltyPolicy{
		Window: 365 * day,
		Steps: []PenaltyStep{
			{FeePercent: decimal.NewFromInt(10), Severity: SeverityLow},
			{FeePercent: decimal.NewFromInt(25), Severity: SeverityMedium},
			{FeePercent: decimal.NewFromInt(50), Severity: SeverityHigh, ReviewRequired: true},
		},
	}
}

// Since returns the start of the look-back window for now.
func (p PenaltyPolicy) Since(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Assess prices the penalty for a host cancellation given the number of prior
// host cancellations inside the window.
func (p PenaltyPolicy) Assess(prior int, accommodation money.Money, extenuating bool) (HostPenalty, error) {
	if extenuating {
		return HostPenalty{Exempt: true, Severity: SeverityNone, Fee: money.Zero(accommodation.Currency)}, nil
	}
	if len(p.Steps) == 0 {
		return HostPenalty{Offense: prior + 1, Severity: SeverityNone, Fee: money.Zero(accommodation.Currency), CalendarBlocked: true}, nil
	}
	if prior < 0 {
		prior = 0
	}
	idx := prior
	if idx >= len(p.Steps) {
		idx = len(p.Steps) - 1
	}
	step := p.Steps[idx]
	fee, err := accommodation.Percent(step.FeePercent)
	if err != nil {
		return HostPenalty{}, err
	}
	return HostPenalty{
		Offense:         prior + 1,
		Severity:        step.Severity,
		Fee:             fee,
		CalendarBlocked: true,
		ReviewRequired:  step.ReviewRequired,
	}, nil
}
