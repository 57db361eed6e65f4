package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept in the minor unit (cents).
const Scale int32 = 2

var (
	ErrInvalidAmount    = errors.New("invalid monetary amount")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrOverflow         = errors.New("monetary amount overflow")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Exponent window accepted from decimal input. Values outside it are rejected
// before any rescaling, which would allocate in proportion to the exponent.
const (
	minExponent int32 = -Scale - 18
	maxExponent int32 = 19
)

// maxQuoted bounds how much of a rejected input is echoed back in an error.
const maxQuoted = 32

// Money is an exact monetary value stored as an integer count of minor units.
// The zero value has no currency and is only useful as "absent".
type Money struct {
	minor    int64
	currency string
}

// New builds a Money from minor units (e.g. cents).
func New(minor int64, currency string) Money {
	return Money{minor: minor, currency: normalizeCurrency(currency)}
}

// Parse reads a decimal string such as "105.00". More than Scale decimal places is rejected
// instead of rounded.
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, clip(amount))
	}
	m, err := FromDecimal(d, currency)
	if err != nil {
		return Money{}, fmt.Errorf("%w (input %q)", err, clip(amount))
	}
	return m, nil
}

// MustParse is Parse for constants and tests.
func MustParse(amount, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converts an exact decimal into minor units.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	cur := normalizeCurrency(currency)
	if cur == "" {
		return Money{}, ErrInvalidCurrency
	}
	if d.IsZero() {
		return Money{currency: cur}, nil
	}
	switch exp := d.Exponent(); {
	case exp < minExponent:
		return Money{}, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, Scale)
	case exp > maxExponent:
		return Money{}, fmt.Errorf("%w: exponent %d out of range", ErrOverflow, exp)
	}
	if !d.Equal(d.Round(Scale)) {
		return Money{}, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, Scale)
	}

	shifted := d.Shift(Scale)
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return Money{}, fmt.Errorf("%w: exceeds %d minor units", ErrOverflow, int64(math.MaxInt64))
	}
	return Money{minor: shifted.IntPart(), currency: cur}, nil
}

func (m Money) Minor() int64              { return m.minor }
func (m Money) Currency() string          { return m.currency }
func (m Money) IsZero() bool              { return m.minor == 0 }
func (m Money) IsPositive() bool          { return m.minor > 0 }
func (m Money) IsAbsent() bool            { return m.currency == "" && m.minor == 0 }
func (m Money) SameCurrency(o Money) bool { return m.currency == o.currency }

// Decimal returns the value as an exact decimal, for display and storage.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -Scale)
}

// Add returns m+o. Both operands must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	if (o.minor > 0 && m.minor > math.MaxInt64-o.minor) || (o.minor < 0 && m.minor < math.MinInt64-o.minor) {
		return Money{}, ErrOverflow
	}
	return Money{minor: m.minor + o.minor, currency: m.currency}, nil
}

// Cmp returns -1, 0 or +1. Comparing across currencies is an error.
func (m Money) Cmp(o Money) (int, error) {
	if !m.SameCurrency(o) {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	switch {
	case m.minor < o.minor:
		return -1, nil
	case m.minor > o.minor:
		return 1, nil
	default:
		return 0, nil
	}
}

// Amount formats the value without the currency, e.g. "105.00".
func (m Money) Amount() string {
	return m.Decimal().StringFixed(Scale)
}

func (m Money) String() string {
	if m.currency == "" {
		return m.Amount()
	}
	return m.Amount() + " " + m.currency
}

type jsonMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes the amount as a string so no client ever sees a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMoney{Amount: m.Amount(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw jsonMoney
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	parsed, err := Parse(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func clip(s string) string {
	if len(s) <= maxQuoted {
		return s
	}
	return s[:maxQuoted] + "..."
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
