package order

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in integer minor units of its currency.
type Money int64

// Add returns m + o.
func (m Money) Add(o Money) Money { return m + o }

// Mul returns m multiplied by a quantity.
func (m Money) Mul(qty int64) Money { return Money(int64(m) * qty) }

var currencyExponent = map[string]int{
	"VND": 0,
	"JPY": 0,
	"KRW": 0,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"SGD": 2,
}

// Exponent returns the number of minor-unit digits for a currency code.
// Unknown currencies default to 2.
func Exponent(currency string) int {
	if exp, ok := currencyExponent[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// Format renders the amount with thousands separators, e.g. "1,250,000 VND"
// or "12,345.67 USD". Display only; never parse this back.
func (m Money) Format(currency string) string {
	p := message.NewPrinter(language.English)
	exp := Exponent(currency)
	amount := int64(m)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	var out string
	if exp == 0 {
		out = p.Sprintf("%d", amount)
	} else {
		div := int64(1)
		for i := 0; i < exp; i++ {
			div *= 10
		}
		out = p.Sprintf("%d", amount/div) + fmt.Sprintf(".%0*d", exp, amount%div)
	}
	if currency == "" {
		return sign + out
	}
	return sign + out + " " + strings.ToUpper(currency)
}
