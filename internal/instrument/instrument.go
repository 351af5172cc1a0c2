// Package instrument holds symbol conventions shared by the cache, the
// fallback synthesizer and the clients.
package instrument

import (
	"strings"

	"github.com/shopspring/decimal"
)

var separators = strings.NewReplacer("/", "", "-", "", "_", "", " ", "")

// Normalize upper-cases a symbol and strips separators, e.g. "usd/jpy" -> "USDJPY".
func Normalize(symbol string) string {
	return strings.ToUpper(separators.Replace(strings.TrimSpace(symbol)))
}

// IsJPYQuoted reports whether the quote currency is JPY.
func IsJPYQuoted(symbol string) bool {
	s := Normalize(symbol)
	return len(s) >= 6 && strings.HasSuffix(s, "JPY")
}

// Precision is the number of decimals a price is displayed with.
func Precision(symbol string) int32 {
	if IsJPYQuoted(symbol) {
		return 2
	}
	return 5
}

func Round(symbol string, price decimal.Decimal) decimal.Decimal {
	return price.Round(Precision(symbol))
}
