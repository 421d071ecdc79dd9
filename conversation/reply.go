package conversation

import "slices"

// Menu names the keyboard a transport should show with a reply.
type Menu string

const (
	MenuNone      Menu = ""
	MenuMain      Menu = "main"
	MenuCity      Menu = "city"
	MenuFilters   Menu = "filters"
	MenuCondition Menu = "condition"
	MenuDocuments Menu = "documents"
	MenuBack      Menu = "back"
)

// Reply is one outgoing message.
type Reply struct {
	Text string `json:"text"`
	Menu Menu   `json:"menu,omitempty"`
}

// Cities offered on the city keyboard.
var Cities = []string{
	"Moscow", "Saint Petersburg",
	"Novosibirsk", "Yekaterinburg",
	"Kazan", "Nizhny Novgorod",
	"Chelyabinsk", "Samara",
	"Omsk", "Rostov-on-Don",
	"Krasnodar", "Voronezh",
}

// Buttons returns the keyboard rows for m.
func Buttons(m Menu) [][]string {
	switch m {
	case MenuMain:
		return [][]string{
			{LabelChooseCity, LabelAddListing},
			{LabelList, LabelFilters},
			{LabelSettings, LabelHelp},
		}
	case MenuCity:
		rows := make([][]string, 0, len(Cities)/2+1)
		for i := 0; i < len(Cities); i += 2 {
			rows = append(rows, slices.Clone(Cities[i:min(i+2, len(Cities))]))
		}
		return append(rows, []string{LabelCustomCity, LabelBack})
	case MenuFilters:
		return [][]string{
			{LabelPrice, LabelYear},
			{LabelCondition, LabelDocuments},
			{LabelResetFilters, LabelBack},
		}
	case MenuCondition:
		return [][]string{
			{LabelConditionNew, LabelConditionUsed},
			{LabelConditionAny, LabelBack},
		}
	case MenuDocuments:
		return [][]string{
			{LabelDocumentsWith, LabelDocumentsWithout},
			{LabelDocumentsAny, LabelBack},
		}
	case MenuBack:
		return [][]string{{LabelBack}}
	}
	return nil
}

// BusyReply is sent when a message arrives while the previous one is still being handled.
func BusyReply() Reply {
	return Reply{Text: "⏳ Please wait, I'm still working on your previous message."}
}
