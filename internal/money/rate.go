package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rate is a fixed-point ratio. 0.05 means five percent; use FromPercent for
// values entered as percentages.
type Rate struct {
	d decimal.Decimal
}

var (
	ZeroRate = Rate{}
	OneRate  = Rate{d: decimal.NewFromInt(1)}
)

var hundred = decimal.NewFromInt(100)

// NewRate parses a decimal string such as "0.0015".
func NewRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return Rate{d: d}, nil
}

// MustRate is NewRate for literals.
func MustRate(s string) Rate {
	r, err := NewRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// RateFromDecimal wraps an existing decimal value.
func RateFromDecimal(d decimal.Decimal) Rate {
	return Rate{d: d}
}

// FromPercent converts a percentage (12.5) to a ratio (0.125).
func (r Rate) FromPercent() Rate {
	return Rate{d: r.d.DivRound(hundred, rateScale)}
}

func (r Rate) Add(o Rate) Rate { return Rate{d: r.d.Add(o.d)} }
func (r Rate) Sub(o Rate) Rate { return Rate{d: r.d.Sub(o.d)} }

func (r Rate) Mul(o Rate) Rate {
	return Rate{d: r.d.Mul(o.d).Round(rateScale)}
}

func (r Rate) Div(o Rate) Rate {
	return Rate{d: r.d.DivRound(o.d, rateScale)}
}

func (r Rate) MulInt(n int64) Rate {
	return Rate{d: r.d.Mul(decimal.NewFromInt(n))}
}

func (r Rate) DivInt(n int64) Rate {
	return Rate{d: r.d.DivRound(decimal.NewFromInt(n), rateScale)}
}

// Pow raises r to a non-negative integer power by repeated squaring,
// rounding every intermediate product to the rate scale.
func (r Rate) Pow(n int) Rate {
	result := OneRate
	base := r
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		n >>= 1
	}
	return result
}

func (r Rate) Decimal() decimal.Decimal { return r.d }
func (r Rate) IsZero() bool              { return r.d.IsZero() }
func (r Rate) IsNegative() bool          { return r.d.IsNegative() }
func (r Rate) IsPositive() bool          { return r.d.IsPositive() }
func (r Rate) Equal(o Rate) bool         { return r.d.Equal(o.d) }
func (r Rate) String() string            { return r.d.String() }

func (r Rate) MarshalJSON() ([]byte, error) { return []byte(`"` + r.String() + `"`), nil }

func (r *Rate) UnmarshalJSON(b []byte) error { return r.d.UnmarshalJSON(b) }

func (r *Rate) Scan(src interface{}) error { return r.d.Scan(src) }

func (r Rate) Value() (driver.Value, error) { return r.d.String(), nil }
