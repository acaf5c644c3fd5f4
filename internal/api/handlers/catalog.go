package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

// CatalogHandler handles the category and currency set endpoints.
type CatalogHandler struct {
	svc *tracker.Service
	log zerolog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(svc *tracker.Service, log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		svc: svc,
		log: log,
	}
}

// ListCategories handles GET /api/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.svc.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// AddCategory handles POST /api/categories {"name": "..."}
func (h *CatalogHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.svc.AddCategory(r.Context(), req.Name)
	h.writeOutcome(w, r, outcome, err, "add category")
}

// RemoveCategory handles DELETE /api/categories/{name}
func (h *CatalogHandler) RemoveCategory(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.svc.RemoveCategory(r.Context(), r.PathValue("name"))
	h.writeOutcome(w, r, outcome, err, "remove category")
}

// ListCurrencies handles GET /api/currencies
func (h *CatalogHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	view := h.svc.Catalog()
	if view.CurrencySuggestions == nil {
		view.CurrencySuggestions = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"currencies":           view.Currencies,
		"display_currency":     view.DisplayCurrency,
		"currency_suggestions": view.CurrencySuggestions,
	})
}

// AddCurrency handles POST /api/currencies {"code": "..."}
func (h *CatalogHandler) AddCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.svc.AddCurrency(r.Context(), req.Code)
	h.writeOutcome(w, r, outcome, err, "add currency")
}

// RemoveCurrency handles DELETE /api/currencies/{code}
func (h *CatalogHandler) RemoveCurrency(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.svc.RemoveCurrency(r.Context(), r.PathValue("code"))
	h.writeOutcome(w, r, outcome, err, "remove currency")
}

// SetDisplayCurrency handles PUT /api/currencies/display {"code": "..."}
func (h *CatalogHandler) SetDisplayCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.svc.SetDisplayCurrency(r.Context(), req.Code)
	if err != nil {
		writeServiceError(w, r, h.log, err, "set display currency")
		return
	}
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Currency is not in the currency set")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"display_currency": h.svc.DisplayCurrency(),
	})
}

// outcomeStatus maps a catalog outcome to an HTTP status. Duplicates are not
// an error.
var outcomeStatus = map[catalog.Outcome]int{
	catalog.Added:         http.StatusCreated,
	catalog.AlreadyExists: http.StatusOK,
	catalog.Removed:       http.StatusOK,
	catalog.Rejected:      http.StatusBadRequest,
	catalog.NotFound:      http.StatusNotFound,
	catalog.Builtin:       http.StatusConflict,
}

func (h *CatalogHandler) writeOutcome(w http.ResponseWriter, r *http.Request, outcome catalog.Outcome, err error, action string) {
	if err != nil {
		writeServiceError(w, r, h.log, err, action)
		return
	}

	status, ok := outcomeStatus[outcome]
	if !ok {
		status = http.StatusOK
	}
	middleware.WriteJSON(w, status, map[string]interface{}{
		"outcome":    outcome,
		"categories": h.svc.Categories(),
		"currencies": h.svc.Currencies(),
	})
}
