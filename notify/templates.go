package notify

import (
	"carwatch/pkg/tracker"
	"fmt"
	"strings"
)

// FormatPriceChange renders the alert for an accepted price change on l.
func FormatPriceChange(l *tracker.Listing, c *tracker.PriceChange) string {
	var b strings.Builder

	if c.Direction() == tracker.Decrease {
		b.WriteString("🎉 Good news!\n\n📉 The price dropped!\n\n")
	} else {
		b.WriteString("⚠️ Heads up!\n\n📈 The price went up!\n\n")
	}

	percent := c.Percent
	if c.Direction() == tracker.Decrease {
		percent = -percent
	}

	fmt.Fprintf(&b, "🚗 %s\n", l.Title)
	fmt.Fprintf(&b, "💰 Old price: %s\n", tracker.FormatPrice(c.OldPrice, l.Currency))
	fmt.Fprintf(&b, "💰 New price: %s\n", tracker.FormatPrice(c.NewPrice, l.Currency))
	fmt.Fprintf(&b, "📊 Change: %s (%s)\n\n",
		tracker.FormatSignedPrice(c.Delta(), l.Currency),
		tracker.FormatSignedPercent(percent))

	if savings := c.Savings(); savings > 0 {
		fmt.Fprintf(&b, "💵 You save: %s\n\n", tracker.FormatPrice(savings, l.Currency))
	}

	b.WriteString("🔗 ")
	b.WriteString(l.URL)
	return b.String()
}
