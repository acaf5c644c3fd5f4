package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
)

// LoadCatalogWithClient reads the stored catalog additions.
func LoadCatalogWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) (catalog.Snapshot, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT kind, value, position
		FROM %s
		ORDER BY kind, position
	`, ds.Table(catalogEntriesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("LoadCatalog: query read: %w", err)
	}

	var rows []CatalogEntryRow
	for {
		var r CatalogEntryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return catalog.Snapshot{}, fmt.Errorf("LoadCatalog: iter next: %w", err)
		}
		rows = append(rows, r)
	}

	return SnapshotFromEntries(rows), nil
}

// SaveCatalogWithClient replaces the stored catalog additions in one transaction.
func SaveCatalogWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, snap catalog.Snapshot) error {
	table := ds.Table(catalogEntriesTable)
	sql := fmt.Sprintf(`
		BEGIN TRANSACTION;

		DELETE FROM %[1]s WHERE TRUE;

		INSERT INTO %[1]s (kind, value, position)
		SELECT '%[2]s', value, position
		FROM UNNEST(@categories) AS value WITH OFFSET AS position;

		INSERT INTO %[1]s (kind, value, position)
		SELECT '%[3]s', value, position
		FROM UNNEST(@currencies) AS value WITH OFFSET AS position;

		INSERT INTO %[1]s (kind, value, position)
		SELECT '%[4]s', @display_currency, 0
		FROM UNNEST([1])
		WHERE @display_currency != '';

		COMMIT TRANSACTION;
	`, table, EntryKindCategory, EntryKindCurrency, EntryKindDisplayCurrency)

	categories := append([]string{}, snap.CustomCategories...)
	currencies := append([]string{}, snap.CustomCurrencies...)

	if _, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "categories", Value: categories},
		{Name: "currencies", Value: currencies},
		{Name: "display_currency", Value: snap.DisplayCurrency},
	}); err != nil {
		return fmt.Errorf("SaveCatalog: %w", err)
	}

	return nil
}
