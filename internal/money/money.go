// Package money provides exact decimal arithmetic for account balances and
// transaction amounts. Amounts are never represented as binary floats: repeated
// fee application on float64 drifts away from what a customer statement shows.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when an amount string cannot be parsed as a
// decimal number.
var ErrInvalidAmount = errors.New("invalid amount")

// creditFee is the surcharge factor applied when money leaves a credit-card
// account: 1% extra on the amount removed.
var creditFee = decimal.RequireFromString("1.01")

// Money is an exact decimal currency amount. The zero value is 0.
type Money struct {
	dec decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// Parse converts a decimal string (e.g. "100.00") into a Money value.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Money{dec: d}, nil
}

// MustParse is Parse for literals in tests and fixtures; it panics on bad input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{dec: m.dec.Add(other.dec)}
}

// Sub returns m - other. The result may be negative; callers validate.
func (m Money) Sub(other Money) Money {
	return Money{dec: m.dec.Sub(other.dec)}
}

// WithCreditFee returns m * 1.01 exactly.
func (m Money) WithCreditFee() Money {
	return Money{dec: m.dec.Mul(creditFee)}
}

// Cmp compares numeric values: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	return m.dec.Cmp(other.dec)
}

// Equal reports numeric equality, so "100.0" and "100.00" are equal.
func (m Money) Equal(other Money) bool {
	return m.dec.Cmp(other.dec) == 0
}

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool {
	return m.dec.IsNegative()
}

// IsPositive reports whether m > 0.
func (m Money) IsPositive() bool {
	return m.dec.IsPositive()
}

func (m Money) String() string {
	return m.dec.String()
}

// MarshalJSON serializes the amount as a decimal string, matching the string
// amounts accepted at the API boundary.
func (m Money) MarshalJSON() ([]byte, error) {
	return m.dec.MarshalJSON()
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	m.dec = d
	return nil
}

// Value implements driver.Valuer so Money maps to a NUMERIC column.
func (m Money) Value() (driver.Value, error) {
	return m.dec.Value()
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src any) error {
	return m.dec.Scan(src)
}
