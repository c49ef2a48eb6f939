package pricing

import (
	"errors"

	"stayengine/internal/domain/shared/money"
)

var (
	ErrNegativeComponent = errors.New("pricing: components cannot be negative")
	ErrCurrencyUnset     = errors.New("pricing: currency must be defined")
	ErrTotalMismatch     = errors.New("pricing: total does not match components")
	ErrNonPositiveTotal  = errors.New("pricing: total must be positive")
)

// PriceBreakdown is the quote captured on a booking at creation time. It is a
// snapshot and is never recomputed from the live listing price.
type PriceBreakdown struct {
	Nights          int         `json:"nights" bson:"nights"`
	Nightly         money.Money `json:"nightly" bson:"nightly"`
	Subtotal        money.Money `json:"subtotal" bson:"subtotal"`
	Discount        money.Money `json:"discount" bson:"discount"`
	CleaningFee     money.Money `json:"cleaning_fee" bson:"cleaning_fee"`
	GuestServiceFee money.Money `json:"guest_service_fee" bson:"guest_service_fee"`
	HostServiceFee  money.Money `json:"host_service_fee" bson:"host_service_fee"`
	Total           money.Money `json:"total" bson:"total"`
}

// Currency returns the currency shared by all components.
func (p PriceBreakdown) Currency() string {
	return p.Total.Currency
}

// Validate checks total = subtotal - discount + cleaning + guest fee with every
// component non-negative and the total strictly positive.
func (p PriceBreakdown) Validate() error {
	if p.Subtotal.Currency == "" {
		return ErrCurrencyUnset
	}
	if p.Nights <= 0 {
		return errors.New("pricing: nights must be positive")
	}
	for _, c := range []money.Money{p.Nightly, p.Subtotal, p.Discount, p.CleaningFee, p.GuestServiceFee, p.HostServiceFee} {
		if c.IsNegative() {
			return ErrNegativeComponent
		}
	}
	want, err := p.computeTotal()
	if err != nil {
		return err
	}
	if want != p.Total {
		return ErrTotalMismatch
	}
	if p.Total.Amount <= 0 {
		return ErrNonPositiveTotal
	}
	return nil
}

// RecalculateTotal recomputes Total from the components.
func (p *PriceBreakdown) RecalculateTotal() error {
	total, err := p.computeTotal()
	if err != nil {
		return err
	}
	p.Total = total
	return nil
}

func (p PriceBreakdown) computeTotal() (money.Money, error) {
	accommodation, err := p.Accommodation()
	if err != nil {
		return money.Money{}, err
	}
	return accommodation.Sum(p.CleaningFee, p.GuestServiceFee)
}

// Accommodation is the discounted amount paid for the nights themselves.
func (p PriceBreakdown) Accommodation() (money.Money, error) {
	return p.Subtotal.Sub(p.Discount)
}

// CompletionPayout is what the host receives once the stay completes.
func (p PriceBreakdown) CompletionPayout() (money.Money, error) {
	accommodation, err := p.Accommodation()
	if err != nil {
		return money.Money{}, err
	}
	gross, err := accommodation.Add(p.CleaningFee)
	if err != nil {
		return money.Money{}, err
	}
	net, err := gross.Sub(p.HostServiceFee)
	if err != nil {
		return money.Money{}, err
	}
	if net.IsNegative() {
		return money.Zero(net.Currency), nil
	}
	return net, nil
}
