// Package query filters, orders and totals the expense list for display.
package query

import (
	"math"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Result is the filtered view of the expense list.
type Result struct {
	Expenses   []domain.Expense `json:"expenses"`
	Total      float64          `json:"total"`
	Count      int              `json:"count"`
	ByCategory []CategoryTotal  `json:"by_category"`
}

type dated struct {
	expense domain.Expense
	date    civil.Date
	ok      bool
}

// Run applies c to expenses as of now. The input slice is not modified.
// Expenses whose date cannot be parsed pass every date filter.
func Run(expenses []domain.Expense, c Criteria, now time.Time) Result {
	today := civil.DateOf(now)

	kept := make([]dated, 0, len(expenses))
	for _, e := range expenses {
		d, ok := ParseExpenseDate(e.Date)
		if ok && !c.Range.contains(d, today) {
			continue
		}
		if !matchesCategory(e, c.Category) {
			continue
		}
		kept = append(kept, dated{expense: e, date: d, ok: ok})
	}

	// Newest first; undated records go last in input order.
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.date.After(b.date)
	})

	res := Result{Expenses: make([]domain.Expense, 0, len(kept))}
	byCategory := make(map[string]*CategoryTotal)
	for _, k := range kept {
		amount := amountOf(k.expense)
		res.Expenses = append(res.Expenses, k.expense)
		res.Total += amount

		ct, ok := byCategory[k.expense.Category]
		if !ok {
			ct = &CategoryTotal{Category: k.expense.Category}
			byCategory[k.expense.Category] = ct
		}
		ct.Total += amount
		ct.Count++
	}
	res.Count = len(res.Expenses)

	res.ByCategory = make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		res.ByCategory = append(res.ByCategory, *ct)
	}
	sort.Slice(res.ByCategory, func(i, j int) bool {
		if res.ByCategory[i].Total != res.ByCategory[j].Total {
			return res.ByCategory[i].Total > res.ByCategory[j].Total
		}
		return res.ByCategory[i].Category < res.ByCategory[j].Category
	})

	return res
}

func matchesCategory(e domain.Expense, category string) bool {
	if category == "" || category == AllCategories {
		return true
	}
	return e.Category == category
}

func amountOf(e domain.Expense) float64 {
	if math.IsNaN(e.Amount) || e.Amount < 0 {
		return 0
	}
	return e.Amount
}
