package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of decimal places kept for currency amounts.
	Scale = 2
	// rateScale bounds the precision of rate arithmetic and intermediate divisions.
	rateScale = 20
)

// Amount is a fixed-point currency amount. The zero value is 0.00.
type Amount struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Amount{}

// NewAmount parses a decimal string such as "1250.75".
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustAmount is NewAmount for literals; it panics on malformed input.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromInt returns a whole-unit amount.
func FromInt(units int64) Amount {
	return Amount{d: decimal.NewFromInt(units)}
}

// FromDecimal wraps an existing decimal value.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Round rounds half away from zero to the currency scale.
func (a Amount) Round() Amount {
	return Amount{d: a.d.Round(Scale)}
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulRate multiplies by a rate without rounding.
func (a Amount) MulRate(r Rate) Amount {
	return Amount{d: a.d.Mul(r.d)}
}

// MulInt multiplies by an integer count without rounding.
func (a Amount) MulInt(n int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(n))}
}

// DivInt divides by n, keeping the internal rate precision. Callers round.
func (a Amount) DivInt(n int64) Amount {
	return Amount{d: a.d.DivRound(decimal.NewFromInt(n), rateScale)}
}

func (a Amount) Cmp(b Amount) int            { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool         { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool      { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool   { return a.d.GreaterThan(b.d) }
func (a Amount) IsZero() bool                { return a.d.IsZero() }
func (a Amount) IsPositive() bool            { return a.d.IsPositive() }
func (a Amount) IsNegative() bool            { return a.d.IsNegative() }
func (a Amount) Abs() Amount                 { return Amount{d: a.d.Abs()} }
func (a Amount) String() string              { return a.d.StringFixed(Scale) }
func (a Amount) MarshalJSON() ([]byte, error) { return []byte(`"` + a.String() + `"`), nil }

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.d.UnmarshalJSON(b)
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(src interface{}) error {
	return a.d.Scan(src)
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.d.StringFixed(Scale), nil
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds every amount.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
