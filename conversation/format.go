package conversation

import (
	"carwatch/pkg/tracker"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxChunk keeps each outgoing message under common chat platform limits.
const maxChunk = 4000

var conditionNames = map[tracker.Condition]string{
	tracker.ConditionNew:  LabelConditionNew,
	tracker.ConditionUsed: LabelConditionUsed,
	tracker.ConditionAny:  LabelConditionAny,
}

var documentsNames = map[tracker.Documents]string{
	tracker.DocumentsWith:    LabelDocumentsWith,
	tracker.DocumentsWithout: LabelDocumentsWithout,
	tracker.DocumentsAny:     LabelDocumentsAny,
}

func sitesList() string {
	var b strings.Builder
	for _, s := range tracker.SupportedSites {
		b.WriteString("• ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func welcomeText(p *tracker.Profile) string {
	var b strings.Builder
	b.WriteString("🚗 Welcome to the car price tracker!\n\n")
	b.WriteString("I watch listing prices on:\n")
	b.WriteString(sitesList())
	b.WriteString("\n")
	if p.City != "" {
		fmt.Fprintf(&b, "📍 Your city: %s\n", p.City)
		fmt.Fprintf(&b, "📊 Tracking: %d listings\n\n", len(p.Listings))
	} else {
		b.WriteString("⚠️ Pick your city first\n\n")
	}
	b.WriteString("Choose an action:")
	return b.String()
}

func rangeText(minV, maxV *int64, format func(int64) string) string {
	switch {
	case minV != nil && maxV != nil:
		return format(*minV) + " - " + format(*maxV)
	case minV != nil:
		return "from " + format(*minV)
	default:
		return "up to " + format(*maxV)
	}
}

func widen(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

// filtersSummary renders the configured filters, one per line.
func filtersSummary(f tracker.Filters) string {
	var lines []string

	if f.PriceMin != nil || f.PriceMax != nil {
		lines = append(lines, "💰 Price: "+rangeText(f.PriceMin, f.PriceMax, func(n int64) string {
			return tracker.FormatPrice(n, "")
		}))
	}
	if f.YearMin != nil || f.YearMax != nil {
		lines = append(lines, "📅 Year: "+rangeText(widen(f.YearMin), widen(f.YearMax), func(n int64) string {
			return fmt.Sprint(n)
		}))
	}
	if f.Condition != "" {
		lines = append(lines, "🚗 Condition: "+conditionNames[f.Condition])
	}
	if f.Documents != "" {
		lines = append(lines, "📄 Documents: "+documentsNames[f.Documents])
	}

	if len(lines) == 0 {
		return "No filters set"
	}
	return strings.Join(lines, "\n")
}

func filterMenuText(f tracker.Filters) string {
	return "🔍 Search filters\n\n" + filtersSummary(f) + "\n\nChoose what to set:"
}

func cityPromptText() string {
	return "🏙 Choose your city:\n\nThe city is used to filter listings"
}

func addPromptText() string {
	return "📎 Send a link to a listing\n\nSupported sites:\n" + sitesList() +
		"\nExample:\nhttps://auto.ru/cars/used/sale/kia/rio/1234567890/"
}

func snapshotLines(b *strings.Builder, snap *tracker.Snapshot) {
	fmt.Fprintf(b, "🚗 %s\n", snap.Title)
	fmt.Fprintf(b, "💰 Price: %s\n", tracker.FormatPrice(snap.Price, snap.Currency))
}

func mismatchText(snap *tracker.Snapshot) string {
	var b strings.Builder
	b.WriteString("⚠️ This car does not match your filters!\n\n")
	snapshotLines(&b, snap)
	if snap.Year != nil {
		fmt.Fprintf(&b, "📅 Year: %d\n", *snap.Year)
	}
	b.WriteString("\n❓ Add it anyway? Send the link again")
	return b.String()
}

func addedText(l *tracker.Listing) string {
	var b strings.Builder
	b.WriteString("✅ Listing added!\n\n")
	fmt.Fprintf(&b, "🚗 %s\n", l.Title)
	fmt.Fprintf(&b, "💰 Price: %s\n", tracker.FormatPrice(l.CurrentPrice, l.Currency))
	fmt.Fprintf(&b, "🌐 Site: %s\n", l.Site)
	if l.Year != nil {
		fmt.Fprintf(&b, "📅 Year: %d\n", *l.Year)
	}
	if l.Mileage != nil {
		fmt.Fprintf(&b, "🛣 Mileage: %s km\n", tracker.GroupThousands(int64(*l.Mileage)))
	}
	if l.Location != "" {
		fmt.Fprintf(&b, "📍 Location: %s\n", l.Location)
	}
	b.WriteString("\n💡 I'll keep an eye on the price!")
	return b.String()
}

func listingEntry(i int, l *tracker.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s\n", i, l.Title)
	fmt.Fprintf(&b, "   💰 %s", tracker.FormatPrice(l.CurrentPrice, l.Currency))

	if delta, percent := l.ChangeSinceAdded(); delta != 0 {
		mark := "📈"
		if delta < 0 {
			mark = "📉"
		}
		fmt.Fprintf(&b, " %s %s (%s)", mark, tracker.FormatSignedPrice(delta, l.Currency), tracker.FormatSignedPercent(percent))
	}

	fmt.Fprintf(&b, "\n   🌐 %s", l.Site)
	if l.Location != "" {
		fmt.Fprintf(&b, "\n   📍 %s", l.Location)
	}
	fmt.Fprintf(&b, "\n   🔗 %s\n\n", l.URL)
	return b.String()
}

// listingOverview renders the user's listings split into messages under maxChunk characters.
// Entries are never split across messages unless one alone exceeds the limit.
func listingOverview(listings []*tracker.Listing) []string {
	if len(listings) == 0 {
		return []string{"📋 You are not tracking any listings yet\n\nAdd your first one!"}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	cur.WriteString("📋 Your listings:\n\n")

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}

	for i, l := range listings {
		entry := listingEntry(i+1, l)
		if utf8.RuneCountInString(cur.String())+utf8.RuneCountInString(entry) > maxChunk {
			flush()
		}
		for utf8.RuneCountInString(entry) > maxChunk {
			head, rest := splitRunes(entry, maxChunk)
			chunks = append(chunks, head)
			entry = rest
		}
		cur.WriteString(entry)
	}
	flush()
	return chunks
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

func settingsText(p *tracker.Profile) string {
	city := p.City
	if city == "" {
		city = "Not set"
	}
	return fmt.Sprintf("⚙️ Settings\n\n📍 City: %s\n📊 Alert threshold: %g%%\n📋 Listings: %d\n\n🔍 Filters:\n%s",
		city, p.ThresholdPercent, len(p.Listings), filtersSummary(p.Filters))
}

func helpText(threshold float64) string {
	var b strings.Builder
	b.WriteString("❓ How to use the bot\n\n")
	b.WriteString("🎯 What I do:\n")
	b.WriteString("• Track car listing prices\n")
	b.WriteString("• Alert you when a price changes\n")
	b.WriteString("• Keep the price history\n")
	b.WriteString("• Check new listings against your filters\n\n")
	b.WriteString("📝 Getting started:\n")
	b.WriteString("1️⃣ Choose your city\n")
	b.WriteString("2️⃣ Set filters (optional)\n")
	b.WriteString("3️⃣ Add listing links\n")
	b.WriteString("4️⃣ Get alerts\n\n")
	b.WriteString("🔍 Available filters:\n")
	b.WriteString("• Price range\n")
	b.WriteString("• Model year\n")
	b.WriteString("• Condition (new/used)\n")
	b.WriteString("• Documents\n\n")
	b.WriteString("🌐 Supported sites:\n")
	b.WriteString(sitesList())
	fmt.Fprintf(&b, "\n🔔 You get an alert when the price moves by %g%% or more\n\n", threshold)
	b.WriteString("💡 Tip: set your filters before adding listings!")
	return b.String()
}

func yearRangeText(currentYear int) string {
	return fmt.Sprintf("❌ Invalid year!\n\nEnter a year from %d to %d:", MinYear, currentYear)
}

const (
	textSaveFailed     = "⚠️ Could not save your change. Please try again."
	textLoadFailed     = "⚠️ Something went wrong. Please try again later."
	textInvalidURL     = "❌ Invalid link!\n\nSend a link from auto.ru or drom.ru"
	textDuplicate      = "⚠️ This listing is already tracked!"
	textFetching       = "⏳ Fetching the listing data..."
	textFetchFailed    = "❌ Could not retrieve the listing data\n\nCheck the link and try again"
	textCityFirst      = "⚠️ Choose your city first!\n\nUse the '" + LabelChooseCity + "' button"
	textCustomCity     = "✏️ Type the name of your city:"
	textPickCity       = "Pick a city from the list or type its name."
	textPriceMin       = "💰 Price range\n\nEnter the minimum price (or 0 to skip):"
	textPriceMax       = "💰 Enter the maximum price (or 0 to skip):"
	textBadPrice       = "❌ Invalid format!\n\nEnter a number (for example: 500000):"
	textYearMin        = "📅 Model year range\n\nEnter the earliest year (or 0 to skip):"
	textYearMax        = "📅 Enter the latest year (or 0 to skip):"
	textConditionMenu  = "🚗 Choose the car condition:"
	textDocumentsMenu  = "📄 Choose the documents option:"
	textPickOption     = "Please choose one of the options below."
	textFiltersCleared = "🗑 All filters cleared!"
)
