package pipeline

import (
	"strings"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// BuildReceiptPrompt returns the extraction instructions sent with each
// receipt image. The model may only choose from categories; an empty list
// falls back to the extractable set.
func BuildReceiptPrompt(categories []string) string {
	if len(categories) == 0 {
		categories = domain.ExtractableCategories
	}

	var b strings.Builder
	b.WriteString("You are a receipt scanner. Look at this receipt image and extract the data.\n\n")
	b.WriteString("RESPOND WITH ONLY THIS JSON FORMAT (no other text):\n")
	b.WriteString(`{"merchant":"STORE NAME HERE","category":"Food","date":"2024-01-01","currency":"INR","total_amount":100,"payment_method":"Card"}`)
	b.WriteString("\n\nEXTRACTION RULES:\n")
	b.WriteString("1. merchant = Name of store/shop/restaurant (top of receipt usually)\n")
	b.WriteString("2. category = Pick ONE: " + strings.Join(categories, ", ") + "\n")
	b.WriteString("3. date = Date on receipt in YYYY-MM-DD format\n")
	b.WriteString("4. currency = INR if you see ₹ or Rs, USD if $, EUR if €, GBP if £, otherwise the 3-letter code printed on the receipt\n")
	b.WriteString("5. total_amount = The FINAL TOTAL amount paid (look for \"Total\", \"Grand Total\", \"Amount\", \"Net Amount\") - JUST THE NUMBER, no currency symbol\n")
	b.WriteString("6. payment_method = Cash, Card, or UPI\n\n")
	b.WriteString("IMPORTANT:\n")
	b.WriteString("- total_amount MUST be a number like 150 or 299.50, NOT a string\n")
	b.WriteString("- Look carefully for the biggest/final amount at bottom of receipt\n")
	b.WriteString("- If you see ₹150 or Rs.150 or Rs 150, return 150 as total_amount\n\n")
	b.WriteString("Return ONLY the JSON, nothing else:")

	return b.String()
}
