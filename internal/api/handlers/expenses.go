package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/query"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

// ExpensesHandler handles expense endpoints.
type ExpensesHandler struct {
	svc *tracker.Service
	log zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(svc *tracker.Service, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{
		svc: svc,
		log: log,
	}
}

// ListExpenses handles GET /api/expenses?range=&start=&end=&category=
func (h *ExpensesHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Query(r.Context(), criteria)
	if err != nil {
		writeServiceError(w, r, h.log, err, "list expenses")
		return
	}

	if result.Expenses == nil {
		result.Expenses = []domain.Expense{}
	}
	if result.ByCategory == nil {
		result.ByCategory = []query.CategoryTotal{}
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// GetExpense handles GET /api/expenses/{id}
func (h *ExpensesHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.svc.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "get expense")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, expense)
}

// CreateExpense handles POST /api/expenses
func (h *ExpensesHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var in tracker.ExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := h.svc.CreateExpense(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.log, err, "create expense")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, expense)
}

// ReplaceExpense handles PUT /api/expenses/{id}
func (h *ExpensesHandler) ReplaceExpense(w http.ResponseWriter, r *http.Request) {
	var in tracker.ExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := h.svc.ReplaceExpense(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, h.log, err, "replace expense")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, expense)
}

// DeleteExpense handles DELETE /api/expenses/{id}
func (h *ExpensesHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.log, err, "delete expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseCriteria reads the filter selection from the query string. start and
// end are only read for range=custom, and both are required there.
func parseCriteria(r *http.Request) (query.Criteria, error) {
	q := r.URL.Query()

	kind, ok := query.ParseRangeKind(q.Get("range"))
	if !ok {
		return query.Criteria{}, fmt.Errorf("invalid range %q: use all, this_month, last_month or custom", q.Get("range"))
	}

	criteria := query.Criteria{
		Range:    query.DateRange{Kind: kind},
		Category: strings.TrimSpace(q.Get("category")),
	}
	if kind != query.Custom {
		return criteria, nil
	}

	start, ok := query.ParseRangeDate(q.Get("start"))
	if !ok {
		return query.Criteria{}, fmt.Errorf("invalid start date %q: use YYYY-MM-DD or dd/mm/yy", q.Get("start"))
	}
	end, ok := query.ParseRangeDate(q.Get("end"))
	if !ok {
		return query.Criteria{}, fmt.Errorf("invalid end date %q: use YYYY-MM-DD or dd/mm/yy", q.Get("end"))
	}
	criteria.Range = query.CustomRange(start, end)
	return criteria, nil
}
