package domain

import (
	"time"
)

// DateLayout is the calendar-date format used for Expense.Date.
const DateLayout = "2006-01-02"

// Fallback values used when a receipt does not yield a field.
const (
	UnknownMerchant      = "Unknown Store"
	CatchAllCategory     = "Others"
	DefaultPaymentMethod = "Card"
	DefaultCurrency      = "INR"
)

// Expense is one stored transaction, produced either by the receipt
// extractor or entered manually. It is replaced whole on edit.
type Expense struct {
	ID            string    `json:"id"`
	Merchant      string    `json:"merchant"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Date          string    `json:"date"` // YYYY-MM-DD; kept as text so legacy values survive
	Category      string    `json:"category"`
	PaymentMethod string    `json:"payment_method"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// ExtractableCategories is the closed set the receipt model is asked to
// choose from.
var ExtractableCategories = []string{
	"Food",
	"Travel",
	"Bills",
	"Shopping",
	"Health",
	"Entertainment",
	"Others",
}

// Today returns now formatted as an expense date.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}
