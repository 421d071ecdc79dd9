// Package filter decides whether a listing snapshot satisfies a user's acceptance filters.
package filter

import "carwatch/pkg/tracker"

// Matches reports whether snap passes every configured constraint in f.
// Attributes the snapshot does not carry never disqualify it.
func Matches(snap *tracker.Snapshot, f tracker.Filters) bool {
	if f.PriceMin != nil && snap.Price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && snap.Price > *f.PriceMax {
		return false
	}

	if snap.Year != nil {
		if f.YearMin != nil && *snap.Year < *f.YearMin {
			return false
		}
		if f.YearMax != nil && *snap.Year > *f.YearMax {
			return false
		}
	}

	if f.Condition != "" && f.Condition != tracker.ConditionAny && snap.Condition != "" {
		if snap.Condition != f.Condition {
			return false
		}
	}

	if f.Documents != "" && f.Documents != tracker.DocumentsAny && snap.HasDocuments != nil {
		want := f.Documents == tracker.DocumentsWith
		if *snap.HasDocuments != want {
			return false
		}
	}

	return true
}
