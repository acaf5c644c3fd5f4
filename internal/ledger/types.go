// Package ledger defines storage for expenses and catalog settings.
package ledger

import (
	"context"
	"errors"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// ErrNotFound is returned when no expense has the requested id.
var ErrNotFound = errors.New("expense not found")

// ExpenseRepository stores the expense list.
type ExpenseRepository interface {
	// ListExpenses returns every stored expense, most recently inserted first.
	ListExpenses(ctx context.Context) ([]domain.Expense, error)

	// GetExpense returns the expense with the given id or ErrNotFound.
	GetExpense(ctx context.Context, id string) (domain.Expense, error)

	// InsertExpenses stores a batch of new expenses.
	InsertExpenses(ctx context.Context, expenses []domain.Expense) error

	// ReplaceExpense overwrites the expense with the same id or returns ErrNotFound.
	ReplaceExpense(ctx context.Context, expense domain.Expense) error

	// DeleteExpense removes the expense with the given id or returns ErrNotFound.
	DeleteExpense(ctx context.Context, id string) error
}

// CatalogRepository stores user additions to the category and currency sets.
type CatalogRepository interface {
	LoadCatalog(ctx context.Context) (catalog.Snapshot, error)
	SaveCatalog(ctx context.Context, snapshot catalog.Snapshot) error
}

// Repository is the full storage surface used by the tracker.
type Repository interface {
	ExpenseRepository
	CatalogRepository
	Close() error
}
