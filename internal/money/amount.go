package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every Amount.
const Scale = 2

// ErrInvalidAmount is returned when text cannot be read as a scale-2 amount.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	// Zero is the empty amount.
	Zero = Amount{d: decimal.Zero}

	// MaxBalance is the largest value a NUMERIC(15,2) column can hold.
	MaxBalance = Amount{d: decimal.RequireFromString("9999999999999.99")}
)

// Amount is a fixed-point currency value with two fractional digits.
// The zero value is 0.00.
type Amount struct {
	d decimal.Decimal
}

// FromMinor builds an amount from minor units, e.g. FromMinor(1050) is 10.50.
func FromMinor(units int64) Amount {
	return Amount{d: decimal.New(units, -Scale)}
}

// Parse reads a decimal string such as "10", "10.5" or "10.50".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Exponent() < -Scale && !d.Equal(d.Truncate(Scale)) {
		return Zero, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, Scale)
	}
	return Amount{d: d.Truncate(Scale)}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b. A negative result is returned as is.
func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{d: a.d.Neg()}
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal reports whether a and b hold the same value.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

func (a Amount) IsZero() bool     { return a.d.IsZero() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// Minor returns the amount in minor units.
func (a Amount) Minor() int64 {
	return a.d.Shift(Scale).IntPart()
}

// String renders the amount with exactly two decimal places.
func (a Amount) String() string {
	return a.d.StringFixed(Scale)
}

// MarshalJSON encodes the amount as a quoted fixed-point string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both "10.50" and 10.50.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
