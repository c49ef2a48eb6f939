package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidPercent   = errors.New("money: percent must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Money keeps amounts in integer minor units (cents) to avoid floating point issues.
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

// New constructs a Money value validating minimal invariants.
func New(amount int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	currency = strings.ToUpper(currency)
	return Money{Amount: amount, Currency: currency}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: strings.ToUpper(currency)}
}

// Add adds two money values ensuring currencies match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub subtracts other from the receiver.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Sum adds all values to the receiver.
func (m Money) Sum(others ...Money) (Money, error) {
	total := m
	for _, o := range others {
		next, err := total.Add(o)
		if err != nil {
			return Money{}, err
		}
		total = next
	}
	return total, nil
}

// Neg returns the negated amount preserving currency.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Multiply multiplies the amount by the provided factor.
func (m Money) Multiply(times int64) Money {
	return Money{Amount: m.Amount * times, Currency: m.Currency}
}

// Percent returns pct percent of the amount rounded half-up to the minor unit.
func (m Money) Percent(pct decimal.Decimal) (Money, error) {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return Money{}, ErrInvalidPercent
	}
	amount := decimal.NewFromInt(m.Amount).Mul(pct).Div(hundred).Round(0)
	return Money{Amount: amount.IntPart(), Currency: m.Currency}, nil
}

// Prorate returns part/whole of the amount rounded half-up to the minor unit.
func (m Money) Prorate(part, whole int64) Money {
	if whole <= 0 || part <= 0 {
		return Money{Currency: m.Currency}
	}
	if part >= whole {
		return m
	}
	amount := decimal.NewFromInt(m.Amount).Mul(decimal.NewFromInt(part)).Div(decimal.NewFromInt(whole)).Round(0)
	return Money{Amount: amount.IntPart(), Currency: m.Currency}
}

// Min returns the smaller of the two values. Currencies are assumed equal.
func (m Money) Min(other Money) Money {
	if other.Amount < m.Amount {
		return other
	}
	return m
}

// IsZero returns true if the amount equals zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount < 0
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}
