package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
)

// Ledger is the BigQuery implementation of ledger.Repository. It holds a
// shared client to avoid creating a new connection for each operation.
type Ledger struct {
	client *bigquery.Client
	ds     Dataset
}

// NewLedger creates a Ledger with its own BigQuery client.
func NewLedger(ctx context.Context, projectID, datasetID string) (*Ledger, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedger: creating client: %w", err)
	}
	return NewLedgerWithClient(client, Dataset{ProjectID: projectID, DatasetID: datasetID}), nil
}

// NewLedgerWithClient wraps an existing client.
func NewLedgerWithClient(client *bigquery.Client, ds Dataset) *Ledger {
	return &Ledger{client: client, ds: ds}
}

// Close closes the BigQuery client connection.
func (l *Ledger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// ListExpenses delegates to ListExpensesWithClient.
func (l *Ledger) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return ListExpensesWithClient(ctx, l.client, l.ds)
}

// GetExpense delegates to GetExpenseWithClient.
func (l *Ledger) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	return GetExpenseWithClient(ctx, l.client, l.ds, id)
}

// InsertExpenses delegates to InsertExpensesWithClient.
func (l *Ledger) InsertExpenses(ctx context.Context, expenses []domain.Expense) error {
	return InsertExpensesWithClient(ctx, l.client, l.ds, expenses)
}

// ReplaceExpense delegates to ReplaceExpenseWithClient.
func (l *Ledger) ReplaceExpense(ctx context.Context, expense domain.Expense) error {
	return ReplaceExpenseWithClient(ctx, l.client, l.ds, expense)
}

// DeleteExpense delegates to DeleteExpenseWithClient.
func (l *Ledger) DeleteExpense(ctx context.Context, id string) error {
	return DeleteExpenseWithClient(ctx, l.client, l.ds, id)
}

// LoadCatalog delegates to LoadCatalogWithClient.
func (l *Ledger) LoadCatalog(ctx context.Context) (catalog.Snapshot, error) {
	return LoadCatalogWithClient(ctx, l.client, l.ds)
}

// SaveCatalog delegates to SaveCatalogWithClient.
func (l *Ledger) SaveCatalog(ctx context.Context, snap catalog.Snapshot) error {
	return SaveCatalogWithClient(ctx, l.client, l.ds, snap)
}

var _ ledger.Repository = (*Ledger)(nil)
