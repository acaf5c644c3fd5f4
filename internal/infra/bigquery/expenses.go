package bigquery

import (
	"math"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// ExpenseRow mirrors the expenses table.
type ExpenseRow struct {
	ExpenseID string `bigquery:"expense_id"` // REQUIRED

	Merchant string   `bigquery:"merchant"` // REQUIRED
	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED

	// ExpenseDate keeps the date exactly as recorded, which may not parse.
	ExpenseDate string            `bigquery:"expense_date"` // REQUIRED STRING
	ExpenseDay  bigquery.NullDate `bigquery:"expense_day"`  // NULLABLE, parsed from expense_date

	Category      string `bigquery:"category"`       // REQUIRED
	PaymentMethod string `bigquery:"payment_method"` // REQUIRED

	BatchPosition int64 `bigquery:"batch_position"` // REQUIRED, order within the inserting batch

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// NewExpenseRow converts an expense into a table row.
func NewExpenseRow(e domain.Expense, position int) *ExpenseRow {
	return &ExpenseRow{
		ExpenseID:     e.ID,
		Merchant:      e.Merchant,
		Amount:        amountToNumeric(e.Amount),
		Currency:      e.Currency,
		ExpenseDate:   e.Date,
		Category:      e.Category,
		PaymentMethod: e.PaymentMethod,
		BatchPosition: int64(position),
		CreatedTS:     e.CreatedAt.UTC(),
	}
}

// Expense converts the row back into a domain expense.
func (r *ExpenseRow) Expense() domain.Expense {
	date := r.ExpenseDate
	if date == "" && r.ExpenseDay.Valid {
		date = r.ExpenseDay.Date.String()
	}
	return domain.Expense{
		ID:            r.ExpenseID,
		Merchant:      r.Merchant,
		Amount:        numericToAmount(r.Amount),
		Currency:      r.Currency,
		Date:          date,
		Category:      r.Category,
		PaymentMethod: r.PaymentMethod,
		CreatedAt:     r.CreatedTS,
	}
}

// numericScale is the number of fractional digits NUMERIC keeps.
const numericScale = 9

// amountToNumeric rounds to NUMERIC scale in decimal so 0.1 stays 1/10.
func amountToNumeric(amount float64) *big.Rat {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return new(big.Rat)
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', numericScale, 64))
	if !ok {
		return new(big.Rat)
	}
	return r
}

func numericToAmount(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}
