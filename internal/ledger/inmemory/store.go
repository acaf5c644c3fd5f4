package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
)

// Store is an in-memory implementation of ledger.Repository.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu       sync.RWMutex
	expenses []domain.Expense
	snapshot catalog.Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// ListExpenses implements ledger.ExpenseRepository.
func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to avoid external modifications
	return append([]domain.Expense{}, s.expenses...), nil
}

// GetExpense implements ledger.ExpenseRepository.
func (s *Store) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.Expense{}, fmt.Errorf("GetExpense %s: %w", id, ledger.ErrNotFound)
	}
	return s.expenses[idx], nil
}

// InsertExpenses implements ledger.ExpenseRepository.
// The batch is placed ahead of existing expenses, keeping its own order.
func (s *Store) InsertExpenses(ctx context.Context, expenses []domain.Expense) error {
	if len(expenses) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(expenses))
	for _, e := range expenses {
		if e.ID == "" {
			return fmt.Errorf("InsertExpenses: expense id is required")
		}
		if seen[e.ID] || s.indexLocked(e.ID) >= 0 {
			return fmt.Errorf("InsertExpenses: duplicate expense id %s", e.ID)
		}
		seen[e.ID] = true
	}

	s.expenses = append(append([]domain.Expense{}, expenses...), s.expenses...)
	return nil
}

// ReplaceExpense implements ledger.ExpenseRepository.
func (s *Store) ReplaceExpense(ctx context.Context, expense domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(expense.ID)
	if idx < 0 {
		return fmt.Errorf("ReplaceExpense %s: %w", expense.ID, ledger.ErrNotFound)
	}
	s.expenses[idx] = expense
	return nil
}

// DeleteExpense implements ledger.ExpenseRepository.
func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("DeleteExpense %s: %w", id, ledger.ErrNotFound)
	}
	s.expenses = slices.Delete(s.expenses, idx, idx+1)
	return nil
}

// LoadCatalog implements ledger.CatalogRepository.
func (s *Store) LoadCatalog(ctx context.Context) (catalog.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySnapshot(s.snapshot), nil
}

// SaveCatalog implements ledger.CatalogRepository.
func (s *Store) SaveCatalog(ctx context.Context, snapshot catalog.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = copySnapshot(snapshot)
	return nil
}

// Close implements ledger.Repository.
func (s *Store) Close() error {
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.expenses, func(e domain.Expense) bool { return e.ID == id })
}

func copySnapshot(s catalog.Snapshot) catalog.Snapshot {
	return catalog.Snapshot{
		CustomCategories: append([]string(nil), s.CustomCategories...),
		CustomCurrencies: append([]string(nil), s.CustomCurrencies...),
		DisplayCurrency:  s.DisplayCurrency,
	}
}

// Ensure Store implements ledger.Repository.
var _ ledger.Repository = (*Store)(nil)
