package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every amount in the system
// carries. Inputs with more precision are rejected rather than rounded.
const Scale = 8

var (
	ErrMalformed    = errors.New("malformed amount")
	ErrNegative     = errors.New("amount must not be negative")
	ErrTooPrecise   = errors.New("amount exceeds 8 fractional digits")
	ErrInvalidScale = errors.New("amount does not fit numeric(30,8)")
)

// Amount is a non-negative fixed-point number with 8 fractional digits.
// The zero value is usable and equals 0.00000000.
type Amount struct {
	d decimal.Decimal
}

// Parse converts a decimal string into an Amount. It rejects empty or
// malformed input, negative values, and values with more than 8
// fractional digits.
func Parse(s string) (Amount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Amount{}, ErrMalformed
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Amount{}, ErrMalformed
	}
	if d.IsNegative() {
		return Amount{}, ErrNegative
	}
	if d.Exponent() < -Scale {
		// Trailing zeros beyond the scale are still exact.
		if !d.Equal(d.Truncate(Scale)) {
			return Amount{}, ErrTooPrecise
		}
	}
	d = d.Truncate(Scale)
	if len(d.Truncate(0).String()) > 22 {
		return Amount{}, ErrInvalidScale
	}
	return Amount{d: d}, nil
}

// MustParse is Parse for trusted literals; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("money: MustParse(%q): %v", s, err))
	}
	return a
}

// FromInt builds an Amount from whole units.
func FromInt(n int64) Amount {
	if n < 0 {
		panic("money: FromInt of negative value")
	}
	return Amount{d: decimal.NewFromInt(n)}
}

// FromDecimal adapts a raw decimal, truncating it to the system scale.
// Negative inputs panic; only derived values that are provably
// non-negative should arrive here.
func FromDecimal(d decimal.Decimal) Amount {
	if d.IsNegative() {
		panic("money: FromDecimal of negative value")
	}
	return Amount{d: d.Truncate(Scale)}
}

// Zero is the additive identity.
func Zero() Amount {
	return Amount{}
}

// String renders the canonical wire format: always exactly 8
// fractional digits.
func (a Amount) String() string {
	return a.d.StringFixed(Scale)
}

// Decimal exposes the underlying value for storage drivers.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// Add returns a + b. Addition at a fixed scale is exact.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b. The caller guarantees a >= b; the result panics
// on a negative outcome so accounting bugs surface loudly.
func (a Amount) Sub(b Amount) Amount {
	r := a.d.Sub(b.d)
	if r.IsNegative() {
		panic(fmt.Sprintf("money: %s - %s is negative", a, b))
	}
	return Amount{d: r}
}

// Mul returns a * b truncated toward zero to 8 fractional digits.
// Truncation, not rounding: the system never invents fractions of the
// smallest unit.
func (a Amount) Mul(b Amount) Amount {
	return Amount{d: a.d.Mul(b.d).Truncate(Scale)}
}

// MulRate multiplies by a bare rate (for commission), truncating to 8
// fractional digits.
func (a Amount) MulRate(rate decimal.Decimal) Amount {
	r := a.d.Mul(rate).Truncate(Scale)
	if r.IsNegative() {
		panic("money: negative rate")
	}
	return Amount{d: r}
}

// Cmp returns -1, 0, or 1 comparing a to b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.d.GreaterThan(b.d)
}

func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// MarshalJSON emits the amount as a JSON string in the canonical
// format. Amounts never travel as bare JSON numbers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts only string-encoded amounts and applies the
// same rules as Parse.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ErrMalformed
	}
	parsed, err := Parse(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
