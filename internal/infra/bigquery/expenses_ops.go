package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
)

// maxRowsPerInsert bounds the number of VALUES tuples per INSERT statement.
const maxRowsPerInsert = 500

const expenseColumns = `
	expense_id,
	merchant,
	amount,
	currency,
	expense_date,
	expense_day,
	category,
	payment_method,
	batch_position,
	created_ts,
	updated_ts`

// ListExpensesWithClient returns every expense, newest batch first,
// keeping the order within each batch.
func ListExpensesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.Expense, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_ts DESC, batch_position ASC
	`, expenseColumns, ds.Table(expensesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: query read: %w", err)
	}

	var expenses []domain.Expense
	for {
		var r ExpenseRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: iter next: %w", err)
		}
		expenses = append(expenses, r.Expense())
	}

	return expenses, nil
}

// GetExpenseWithClient returns a single expense or ledger.ErrNotFound.
func GetExpenseWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, id string) (domain.Expense, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE expense_id = @expense_id
		LIMIT 1
	`, expenseColumns, ds.Table(expensesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "expense_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("GetExpense: query read: %w", err)
	}

	var r ExpenseRow
	err = it.Next(&r)
	if err == iterator.Done {
		return domain.Expense{}, fmt.Errorf("GetExpense %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return domain.Expense{}, fmt.Errorf("GetExpense: iter next: %w", err)
	}

	return r.Expense(), nil
}

// InsertExpensesWithClient inserts a batch with DML rather than the streaming
// inserter, so the rows can be updated or deleted right away.
func InsertExpensesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, expenses []domain.Expense) error {
	if len(expenses) == 0 {
		return nil
	}

	rows := make([]*ExpenseRow, len(expenses))
	seen := make(map[string]bool, len(expenses))
	for i, e := range expenses {
		if e.ID == "" {
			return fmt.Errorf("InsertExpenses: expense id is required")
		}
		if seen[e.ID] {
			return fmt.Errorf("InsertExpenses: duplicate expense id %s", e.ID)
		}
		seen[e.ID] = true
		rows[i] = NewExpenseRow(e, i)
	}

	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(rows))
		sql, params := buildInsertExpenses(ds, rows[start:end])
		if _, err := runDML(ctx, client, sql, params); err != nil {
			return fmt.Errorf("InsertExpenses: inserting rows %d-%d: %w", start, end-1, err)
		}
	}

	return nil
}

// ReplaceExpenseWithClient overwrites every field of an existing expense.
func ReplaceExpenseWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, e domain.Expense) error {
	row := NewExpenseRow(e, 0)
	sql := fmt.Sprintf(`
		UPDATE %s
		SET
			merchant = @merchant,
			amount = @amount,
			currency = @currency,
			expense_date = @expense_date,
			expense_day = SAFE.PARSE_DATE('%%Y-%%m-%%d', @expense_date),
			category = @category,
			payment_method = @payment_method,
			updated_ts = CURRENT_TIMESTAMP()
		WHERE expense_id = @expense_id
	`, ds.Table(expensesTable))

	affected, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "expense_id", Value: row.ExpenseID},
		{Name: "merchant", Value: row.Merchant},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "expense_date", Value: row.ExpenseDate},
		{Name: "category", Value: row.Category},
		{Name: "payment_method", Value: row.PaymentMethod},
	})
	if err != nil {
		return fmt.Errorf("ReplaceExpense: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ReplaceExpense %s: %w", e.ID, ledger.ErrNotFound)
	}

	return nil
}

// DeleteExpenseWithClient removes an expense by id.
func DeleteExpenseWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, id string) error {
	sql := fmt.Sprintf(`
		DELETE FROM %s
		WHERE expense_id = @expense_id
	`, ds.Table(expensesTable))

	affected, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "expense_id", Value: id},
	})
	if err != nil {
		return fmt.Errorf("DeleteExpense: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteExpense %s: %w", id, ledger.ErrNotFound)
	}

	return nil
}

// buildInsertExpenses renders one INSERT with a VALUES tuple per row.
func buildInsertExpenses(ds Dataset, rows []*ExpenseRow) (string, []bigquery.QueryParameter) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s)\nVALUES\n", ds.Table(expensesTable), expenseColumns)

	params := make([]bigquery.QueryParameter, 0, len(rows)*9)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(",\n")
		}
		fmt.Fprintf(&sb,
			"(@id_%[1]d, @merchant_%[1]d, @amount_%[1]d, @currency_%[1]d, @date_%[1]d, "+
				"SAFE.PARSE_DATE('%%Y-%%m-%%d', @date_%[1]d), @category_%[1]d, @payment_%[1]d, "+
				"@position_%[1]d, @created_%[1]d, NULL)", i)

		suffix := fmt.Sprintf("_%d", i)
		params = append(params,
			bigquery.QueryParameter{Name: "id" + suffix, Value: r.ExpenseID},
			bigquery.QueryParameter{Name: "merchant" + suffix, Value: r.Merchant},
			bigquery.QueryParameter{Name: "amount" + suffix, Value: r.Amount},
			bigquery.QueryParameter{Name: "currency" + suffix, Value: r.Currency},
			bigquery.QueryParameter{Name: "date" + suffix, Value: r.ExpenseDate},
			bigquery.QueryParameter{Name: "category" + suffix, Value: r.Category},
			bigquery.QueryParameter{Name: "payment" + suffix, Value: r.PaymentMethod},
			bigquery.QueryParameter{Name: "position" + suffix, Value: r.BatchPosition},
			bigquery.QueryParameter{Name: "created" + suffix, Value: r.CreatedTS},
		)
	}

	return sb.String(), params
}
