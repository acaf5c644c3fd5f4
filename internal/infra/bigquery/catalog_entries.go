package bigquery

import (
	"sort"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
)

// Kinds stored in the catalog_entries table.
const (
	EntryKindCategory        = "category"
	EntryKindCurrency        = "currency"
	EntryKindDisplayCurrency = "display_currency"
)

// CatalogEntryRow mirrors the catalog_entries table. Each user-added category
// or currency is one row; the display currency is a single row of its own kind.
type CatalogEntryRow struct {
	Kind     string `bigquery:"kind"`     // REQUIRED
	Value    string `bigquery:"value"`    // REQUIRED
	Position int64  `bigquery:"position"` // REQUIRED, insertion order within the kind
}

// SnapshotFromEntries rebuilds a catalog snapshot from stored rows.
// Rows of unknown kind are ignored.
func SnapshotFromEntries(rows []CatalogEntryRow) catalog.Snapshot {
	sorted := append([]CatalogEntryRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	var snap catalog.Snapshot
	for _, r := range sorted {
		switch r.Kind {
		case EntryKindCategory:
			snap.CustomCategories = append(snap.CustomCategories, r.Value)
		case EntryKindCurrency:
			snap.CustomCurrencies = append(snap.CustomCurrencies, r.Value)
		case EntryKindDisplayCurrency:
			snap.DisplayCurrency = r.Value
		}
	}
	return snap
}
