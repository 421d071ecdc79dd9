package tracker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CurrencySymbol maps an ISO code to the symbol shown to users. Unknown codes are shown as-is.
func CurrencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "", "RUB", "RUR":
		return "₽"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	default:
		return code
	}
}

// GroupThousands renders n with comma thousands separators, e.g. 1,250,000.
func GroupThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPrice renders an amount with its currency symbol.
func FormatPrice(amount int64, currency string) string {
	return GroupThousands(amount) + " " + CurrencySymbol(currency)
}

// FormatSignedPrice renders a delta with an explicit sign.
func FormatSignedPrice(delta int64, currency string) string {
	if delta > 0 {
		return "+" + FormatPrice(delta, currency)
	}
	return FormatPrice(delta, currency)
}

// FormatSignedPercent renders a percentage with an explicit sign and one decimal.
func FormatSignedPercent(p float64) string {
	if math.IsInf(p, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", p)
}
