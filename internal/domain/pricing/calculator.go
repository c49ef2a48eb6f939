package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

const (
	WeeklyThresholdNights  = 7
	MonthlyThresholdNights = 28
)

// FeeSchedule holds the platform commission rates, in percent of the subtotal.
// Rates come from configuration; the calculator has no built-in defaults.
type FeeSchedule struct {
	GuestServicePercent decimal.Decimal
	HostServicePercent  decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// NewFeeSchedule validates both rates.
func NewFeeSchedule(guestPercent, hostPercent decimal.Decimal) (FeeSchedule, error) {
	for field, p := range map[string]decimal.Decimal{"guest_service_fee": guestPercent, "host_service_fee": hostPercent} {
		if p.IsNegative() || p.GreaterThan(hundred) {
			return FeeSchedule{}, domainerr.NewValidationError(field, "must be between 0 and 100")
		}
	}
	return FeeSchedule{GuestServicePercent: guestPercent, HostServicePercent: hostPercent}, nil
}

// Calculator quotes stays. It is a pure function of its inputs.
type Calculator struct {
	Fees FeeSchedule
}

func NewCalculator(fees FeeSchedule) Calculator {
	return Calculator{Fees: fees}
}

func (c Calculator) Quote(listing *listings.Listing, checkIn, checkOut time.Time, guests int) (PriceBreakdown, error) {
	if listing == nil {
		return PriceBreakdown{}, domainerr.NewValidationError("listing", "is required")
	}
	dr, err := daterange.New(checkIn, checkOut)
	if err != nil {
		return PriceBreakdown{}, domainerr.NewValidationError("dates", err.Error())
	}
	if guests < 1 {
		return PriceBreakdown{}, domainerr.NewValidationError("guests", "must be at least 1")
	}
	if guests > listing.MaxGuests {
		return PriceBreakdown{}, domainerr.NewValidationError("guests", "exceeds listing capacity")
	}
	nights := dr.Nights()
	if nights < listing.MinNights {
		return PriceBreakdown{}, domainerr.NewValidationError("nights", "shorter than listing minimum stay")
	}
	if listing.MaxNights > 0 && nights > listing.MaxNights {
		return PriceBreakdown{}, domainerr.NewValidationError("nights", "longer than listing maximum stay")
	}

	subtotal := listing.NightlyPrice.Multiply(int64(nights))
	discountPct := decimal.Zero
	switch {
	case nights >= MonthlyThresholdNights:
		discountPct = listing.MonthlyDiscountPercent
	case nights >= WeeklyThresholdNights:
		discountPct = listing.WeeklyDiscountPercent
	}
	discount, err := subtotal.Percent(discountPct)
	if err != nil {
		return PriceBreakdown{}, domainerr.NewValidationError("discount", err.Error())
	}
	guestFee, err := subtotal.Percent(c.Fees.GuestServicePercent)
	if err != nil {
		return PriceBreakdown{}, err
	}
	hostFee, err := subtotal.Percent(c.Fees.HostServicePercent)
	if err != nil {
		return PriceBreakdown{}, err
	}

	p := PriceBreakdown{
		Nights:          nights,
		Nightly:         listing.NightlyPrice,
		Subtotal:        subtotal,
		Discount:        discount,
		CleaningFee:     listing.CleaningFee,
		GuestServiceFee: guestFee,
		HostServiceFee:  hostFee,
	}
	if err := p.RecalculateTotal(); err != nil {
		return PriceBreakdown{}, err
	}
	if err := p.Validate(); err != nil {
		return PriceBreakdown{}, domainerr.NewValidationError("total", err.Error())
	}
	return p, nil
}
