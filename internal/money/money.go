// Package money renders integer minor-unit amounts for display. Arithmetic
// everywhere else stays on int64 minor units.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Formatter renders amounts of a single currency.
type Formatter struct {
	currency  string
	exp       int32
	prefix    string
	thousands string
	decimal   string
}

// NewFormatter builds a formatter for currency, where minorUnit is the number
// of minor units in one major unit (100 for IDR sen).
func NewFormatter(currency string, minorUnit int64) Formatter {
	var exp int32
	for m := minorUnit; m > 1; m /= 10 {
		exp++
	}
	f := Formatter{currency: currency, exp: exp, prefix: currency + " ", thousands: ",", decimal: "."}
	if currency == "IDR" {
		f.prefix, f.thousands, f.decimal = "Rp ", ".", ","
	}
	return f
}

// Currency returns the ISO code the formatter renders.
func (f Formatter) Currency() string {
	return f.currency
}

// Format renders amount, e.g. 10000000 IDR sen as "Rp 100.000". Fractions
// are shown only when non-zero.
func (f Formatter) Format(amount int64) string {
	d := decimal.New(amount, -f.exp)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	whole := d.Truncate(0)
	out := sign + f.prefix + group(whole.String(), f.thousands)

	if frac := d.Sub(whole); !frac.IsZero() {
		_, digits, _ := strings.Cut(frac.StringFixed(f.exp), ".")
		out += f.decimal + digits
	}
	return out
}

func group(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
