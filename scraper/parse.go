package scraper

import (
	"carwatch/pkg/tracker"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// parseListing extracts a snapshot from a listing page. It reads, in order of
// preference, schema.org JSON-LD, OpenGraph product meta tags and itemprop
// microdata. None of these are specific to one site.
func parseListing(body io.Reader) (*tracker.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	snap := &tracker.Snapshot{}
	var found bool

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		found = fromJSONLD(raw, snap)
		return !found
	})

	if !found {
		if v, ok := doc.Find(`meta[property="product:price:amount"]`).Attr("content"); ok {
			if price, ok := parsePrice(v); ok {
				snap.Price = price
				found = true
			}
		}
		if v, ok := doc.Find(`meta[property="product:price:currency"]`).Attr("content"); ok {
			snap.Currency = strings.TrimSpace(v)
		}
	}

	if !found {
		sel := doc.Find(`[itemprop="price"]`).First()
		v, ok := sel.Attr("content")
		if !ok {
			v = sel.Text()
		}
		if price, ok := parsePrice(v); ok {
			snap.Price = price
			found = true
		}
		if v, ok := doc.Find(`[itemprop="priceCurrency"]`).First().Attr("content"); ok && snap.Currency == "" {
			snap.Currency = strings.TrimSpace(v)
		}
	}

	if !found {
		return nil, ErrNoPrice
	}

	if snap.Title == "" {
		if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			snap.Title = strings.TrimSpace(v)
		}
	}
	if snap.Title == "" {
		snap.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if snap.Title == "" {
		snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if snap.Title == "" {
		snap.Title = "Untitled listing"
	}

	return snap, nil
}

// fromJSONLD walks a decoded JSON-LD document looking for a node with an offer.
// It fills snap from the first such node and reports whether a price was found.
func fromJSONLD(raw any, snap *tracker.Snapshot) bool {
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if fromJSONLD(item, snap) {
				return true
			}
		}
	case map[string]any:
		if graph, ok := v["@graph"]; ok && fromJSONLD(graph, snap) {
			return true
		}
		offers, ok := v["offers"]
		if !ok {
			return false
		}
		offer := firstObject(offers)
		if offer == nil {
			return false
		}
		price, ok := parsePrice(offer["price"])
		if !ok {
			price, ok = parsePrice(offer["lowPrice"])
		}
		if !ok {
			return false
		}

		snap.Price = price
		snap.Currency = stringValue(offer["priceCurrency"])
		snap.Title = stringValue(v["name"])
		if year, ok := parseYear(v["vehicleModelDate"], v["productionDate"], v["modelDate"]); ok {
			snap.Year = &year
		}
		if mileage, ok := parseMileage(v["mileageFromOdometer"]); ok {
			snap.Mileage = &mileage
		}
		snap.Condition = parseCondition(offer["itemCondition"], v["itemCondition"])
		snap.Location = findLocality(offer)
		return true
	}
	return false
}

func firstObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// parsePrice accepts numbers and strings such as "1 250 000", "1250000.00" or "1,250,000 ₽".
func parsePrice(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return int64(t), true
	case string:
		s := t
		if i := strings.IndexByte(s, '.'); i >= 0 {
			s = s[:i]
		}
		var digits strings.Builder
		for _, r := range s {
			if unicode.IsDigit(r) {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			return 0, false
		}
		n, err := strconv.ParseInt(digits.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func parseYear(candidates ...any) (int, bool) {
	for _, c := range candidates {
		var s string
		switch t := c.(type) {
		case float64:
			s = strconv.Itoa(int(t))
		case string:
			s = strings.TrimSpace(t)
		default:
			continue
		}
		if len(s) < 4 {
			continue
		}
		year, err := strconv.Atoi(s[:4])
		if err == nil && year >= 1900 {
			return year, true
		}
	}
	return 0, false
}

func parseMileage(v any) (int, bool) {
	if m, ok := v.(map[string]any); ok {
		v = m["value"]
	}
	n, ok := parsePrice(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

func parseCondition(candidates ...any) tracker.Condition {
	for _, c := range candidates {
		s := strings.ToLower(stringValue(c))
		switch {
		case strings.HasSuffix(s, "newcondition"):
			return tracker.ConditionNew
		case strings.HasSuffix(s, "usedcondition"):
			return tracker.ConditionUsed
		}
	}
	return ""
}

// findLocality looks for an addressLocality anywhere below v.
func findLocality(v any) string {
	switch t := v.(type) {
	case map[string]any:
		if s := stringValue(t["addressLocality"]); s != "" {
			return s
		}
		for _, child := range t {
			if s := findLocality(child); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range t {
			if s := findLocality(child); s != "" {
				return s
			}
		}
	}
	return ""
}
