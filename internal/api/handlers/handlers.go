// Package handlers serves the expense ledger, receipt scanning and the
// category and currency sets over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// NewRouter registers every endpoint on a new ServeMux. A nil publisher
// disables receipt scanning.
func NewRouter(svc *tracker.Service, publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *http.ServeMux {
	expenses := NewExpensesHandler(svc, log)
	receipts := NewReceiptsHandler(publisher, log)
	cat := NewCatalogHandler(svc, log)
	jobsHandler := NewJobsHandler(store, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/expenses", expenses.ListExpenses)
	mux.HandleFunc("POST /api/expenses", expenses.CreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", expenses.GetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", expenses.ReplaceExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", expenses.DeleteExpense)

	mux.HandleFunc("POST /api/receipts/scan", receipts.ScanReceipts)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	mux.HandleFunc("GET /api/categories", cat.ListCategories)
	mux.HandleFunc("POST /api/categories", cat.AddCategory)
	mux.HandleFunc("DELETE /api/categories/{name}", cat.RemoveCategory)

	mux.HandleFunc("GET /api/currencies", cat.ListCurrencies)
	mux.HandleFunc("POST /api/currencies", cat.AddCurrency)
	mux.HandleFunc("PUT /api/currencies/display", cat.SetDisplayCurrency)
	mux.HandleFunc("DELETE /api/currencies/{code}", cat.RemoveCurrency)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps tracker and ledger errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error, action string) {
	switch {
	case errors.Is(err, tracker.ErrInvalidExpense), errors.Is(err, tracker.ErrNoImages):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Expense not found")
	default:
		log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("Failed to " + action)
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}
