package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
)

// Kinds stored in catalog_entries.
const (
	entryKindCategory        = "category"
	entryKindCurrency        = "currency"
	entryKindDisplayCurrency = "display_currency"
)

const expenseColumns = `expense_id, merchant, amount, currency, expense_date, category, payment_method, created_at`

// Ledger is a ledger.Repository backed by SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger opens (and migrates) the database at path.
func NewLedger(ctx context.Context, path string) (*Ledger, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("NewLedger: %w", err)
	}
	return NewLedgerWithDB(db), nil
}

// NewLedgerWithDB wraps an already migrated database.
func NewLedgerWithDB(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// ListExpenses returns every expense, newest batch first, keeping the order
// within each batch.
func (l *Ledger) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		ORDER BY batch_seq DESC, batch_position ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: query: %w", err)
	}
	defer rows.Close()

	var expenses []domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: scan: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListExpenses: rows: %w", err)
	}
	return expenses, nil
}

// GetExpense returns the expense with id or ledger.ErrNotFound.
func (l *Ledger) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE expense_id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Expense{}, fmt.Errorf("GetExpense %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return domain.Expense{}, fmt.Errorf("GetExpense %s: %w", id, err)
	}
	return e, nil
}

// InsertExpenses stores the batch in one transaction ahead of every earlier
// batch. An empty or duplicate id fails the whole batch.
func (l *Ledger) InsertExpenses(ctx context.Context, expenses []domain.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	for _, e := range expenses {
		if e.ID == "" {
			return fmt.Errorf("InsertExpenses: expense id is required")
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InsertExpenses: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(batch_seq), 0) + 1 FROM expenses`).Scan(&seq); err != nil {
		return fmt.Errorf("InsertExpenses: next batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`, batch_seq, batch_position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("InsertExpenses: prepare: %w", err)
	}
	defer stmt.Close()

	for i, e := range expenses {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Merchant, e.Amount, e.Currency, e.Date, e.Category, e.PaymentMethod,
			formatTime(e.CreatedAt), seq, i,
		); err != nil {
			return fmt.Errorf("InsertExpenses: insert %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InsertExpenses: commit: %w", err)
	}
	return nil
}

// ReplaceExpense overwrites every field of the stored expense with the same id.
func (l *Ledger) ReplaceExpense(ctx context.Context, e domain.Expense) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE expenses
		SET merchant = ?, amount = ?, currency = ?, expense_date = ?, category = ?,
		    payment_method = ?, created_at = COALESCE(NULLIF(?, ''), created_at), updated_at = ?
		WHERE expense_id = ?`,
		e.Merchant, e.Amount, e.Currency, e.Date, e.Category, e.PaymentMethod,
		formatTime(e.CreatedAt), formatTime(l.now()), e.ID,
	)
	if err != nil {
		return fmt.Errorf("ReplaceExpense %s: %w", e.ID, err)
	}
	return requireRow(res, "ReplaceExpense", e.ID)
}

// DeleteExpense removes the expense with id.
func (l *Ledger) DeleteExpense(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM expenses WHERE expense_id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteExpense %s: %w", id, err)
	}
	return requireRow(res, "DeleteExpense", id)
}

// LoadCatalog reads the stored catalog additions.
func (l *Ledger) LoadCatalog(ctx context.Context) (catalog.Snapshot, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT kind, value FROM catalog_entries ORDER BY kind, position`)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("LoadCatalog: query: %w", err)
	}
	defer rows.Close()

	var snap catalog.Snapshot
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return catalog.Snapshot{}, fmt.Errorf("LoadCatalog: scan: %w", err)
		}
		switch kind {
		case entryKindCategory:
			snap.CustomCategories = append(snap.CustomCategories, value)
		case entryKindCurrency:
			snap.CustomCurrencies = append(snap.CustomCurrencies, value)
		case entryKindDisplayCurrency:
			snap.DisplayCurrency = value
		}
	}
	if err := rows.Err(); err != nil {
		return catalog.Snapshot{}, fmt.Errorf("LoadCatalog: rows: %w", err)
	}
	return snap, nil
}

// SaveCatalog replaces the stored catalog additions in one transaction.
func (l *Ledger) SaveCatalog(ctx context.Context, snap catalog.Snapshot) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveCatalog: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries`); err != nil {
		return fmt.Errorf("SaveCatalog: clear: %w", err)
	}

	insert := func(kind string, values []string) error {
		for i, v := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO catalog_entries (kind, value, position) VALUES (?, ?, ?)`, kind, v, i,
			); err != nil {
				return fmt.Errorf("SaveCatalog: insert %s %q: %w", kind, v, err)
			}
		}
		return nil
	}
	if err := insert(entryKindCategory, snap.CustomCategories); err != nil {
		return err
	}
	if err := insert(entryKindCurrency, snap.CustomCurrencies); err != nil {
		return err
	}
	if snap.DisplayCurrency != "" {
		if err := insert(entryKindDisplayCurrency, []string{snap.DisplayCurrency}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SaveCatalog: commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(r rowScanner) (domain.Expense, error) {
	var (
		e       domain.Expense
		created string
	)
	if err := r.Scan(&e.ID, &e.Merchant, &e.Amount, &e.Currency, &e.Date, &e.Category, &e.PaymentMethod, &created); err != nil {
		return domain.Expense{}, err
	}
	e.CreatedAt = parseTime(created)
	return e, nil
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ledger.ErrNotFound)
	}
	return nil
}

var _ ledger.Repository = (*Ledger)(nil)
