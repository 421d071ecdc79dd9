package conversation

import (
	"strings"
	"unicode"
)

// Kind identifies what a user message asks for.
type Kind int

const (
	KindText Kind = iota // Free text: a city, URL, number...
	KindStart
	KindBack
	KindChooseCity
	KindAddListing
	KindList
	KindFilters
	KindSettings
	KindHelp
	KindCustomCity
	KindPrice
	KindYear
	KindCondition
	KindDocuments
	KindResetFilters
	KindConditionNew
	KindConditionUsed
	KindConditionAny
	KindDocumentsWith
	KindDocumentsWithout
	KindDocumentsAny
)

// Command is a decoded user message. Text always holds the trimmed original input.
type Command struct {
	Kind Kind
	Text string
}

// Button labels shown to users.
const (
	LabelChooseCity       = "🏙 Choose city"
	LabelAddListing       = "➕ Add listing"
	LabelList             = "📋 My listings"
	LabelFilters          = "🔍 Filters"
	LabelSettings         = "⚙️ Settings"
	LabelHelp             = "❓ Help"
	LabelCustomCity       = "✏️ Other city"
	LabelBack             = "« Back"
	LabelPrice            = "💰 Price"
	LabelYear             = "📅 Year"
	LabelCondition        = "🚗 Condition"
	LabelDocuments        = "📄 Documents"
	LabelResetFilters     = "🗑 Reset filters"
	LabelConditionNew     = "🆕 New"
	LabelConditionUsed    = "🔧 Used"
	LabelConditionAny     = "🔄 Any condition"
	LabelDocumentsWith    = "✅ With documents"
	LabelDocumentsWithout = "❌ Without documents"
	LabelDocumentsAny     = "🔄 Any documents"
)

var labelKinds = map[string]Kind{
	LabelChooseCity:       KindChooseCity,
	LabelAddListing:       KindAddListing,
	LabelList:             KindList,
	LabelFilters:          KindFilters,
	LabelSettings:         KindSettings,
	LabelHelp:             KindHelp,
	LabelCustomCity:       KindCustomCity,
	LabelBack:             KindBack,
	LabelPrice:            KindPrice,
	LabelYear:             KindYear,
	LabelCondition:        KindCondition,
	LabelDocuments:        KindDocuments,
	LabelResetFilters:     KindResetFilters,
	LabelConditionNew:     KindConditionNew,
	LabelConditionUsed:    KindConditionUsed,
	LabelConditionAny:     KindConditionAny,
	LabelDocumentsWith:    KindDocumentsWith,
	LabelDocumentsWithout: KindDocumentsWithout,
	LabelDocumentsAny:     KindDocumentsAny,
}

// Keyed by the label text without its leading symbol, lowercased.
var plainKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(labelKinds))
	for label, kind := range labelKinds {
		m[normalize(label)] = kind
	}
	return m
}()

var startKeywords = map[string]bool{
	"start":  true,
	"/start": true,
	"menu":   true,
	"/menu":  true,
}

// Decode maps a raw message to a Command. Button labels match exactly or by
// their text alone ("choose city"); anything else is free text.
func Decode(raw string) Command {
	text := strings.TrimSpace(raw)
	cmd := Command{Kind: KindText, Text: text}

	if startKeywords[strings.ToLower(text)] {
		cmd.Kind = KindStart
		return cmd
	}
	if kind, ok := labelKinds[text]; ok {
		cmd.Kind = kind
		return cmd
	}
	if kind, ok := plainKinds[normalize(text)]; ok {
		cmd.Kind = kind
	}
	return cmd
}

// normalize drops leading symbols and spaces and lowercases the rest.
func normalize(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToLower(strings.TrimSpace(s))
}
