package tracker

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// CatalogView is the full state of the category and currency sets.
type CatalogView struct {
	Categories          []catalog.Category `json:"categories"`
	Currencies          []catalog.Currency `json:"currencies"`
	DisplayCurrency     string             `json:"display_currency"`
	CurrencySuggestions []string           `json:"currency_suggestions"`
}

// Catalog returns the current sets, with suggestions limited to codes not yet added.
func (s *Service) Catalog() CatalogView {
	var suggestions []string
	for _, code := range catalog.CurrencySuggestions {
		if !s.catalog.HasCurrency(code) {
			suggestions = append(suggestions, code)
		}
	}
	return CatalogView{
		Categories:          s.catalog.Categories(),
		Currencies:          s.catalog.Currencies(),
		DisplayCurrency:     s.catalog.DisplayCurrency(),
		CurrencySuggestions: suggestions,
	}
}

// Categories returns the category set with glyphs.
func (s *Service) Categories() []catalog.Category {
	return s.catalog.Categories()
}

// Currencies returns the currency set.
func (s *Service) Currencies() []catalog.Currency {
	return s.catalog.Currencies()
}

// DisplayCurrency returns the selected display currency.
func (s *Service) DisplayCurrency() string {
	return s.catalog.DisplayCurrency()
}

// AddCategory adds a custom category and persists the change.
func (s *Service) AddCategory(ctx context.Context, name string) (catalog.Outcome, error) {
	return s.mutateCatalog(ctx, "add_category", name, func(c *catalog.Catalog) catalog.Outcome {
		return c.AddCategory(name)
	}, catalog.Added)
}

// RemoveCategory removes a custom category and persists the change.
// Expenses already filed under it keep their category.
func (s *Service) RemoveCategory(ctx context.Context, name string) (catalog.Outcome, error) {
	return s.mutateCatalog(ctx, "remove_category", name, func(c *catalog.Catalog) catalog.Outcome {
		return c.RemoveCategory(name)
	}, catalog.Removed)
}

// AddCurrency adds a custom currency and persists the change.
func (s *Service) AddCurrency(ctx context.Context, code string) (catalog.Outcome, error) {
	return s.mutateCatalog(ctx, "add_currency", code, func(c *catalog.Catalog) catalog.Outcome {
		return c.AddCurrency(code)
	}, catalog.Added)
}

// RemoveCurrency removes a custom currency and persists the change.
func (s *Service) RemoveCurrency(ctx context.Context, code string) (catalog.Outcome, error) {
	return s.mutateCatalog(ctx, "remove_currency", code, func(c *catalog.Catalog) catalog.Outcome {
		return c.RemoveCurrency(code)
	}, catalog.Removed)
}

// SetDisplayCurrency selects the display currency and persists it. It reports
// false for codes outside the currency set.
func (s *Service) SetDisplayCurrency(ctx context.Context, code string) (bool, error) {
	var ok bool
	_, err := s.mutateCatalog(ctx, "set_display_currency", code, func(c *catalog.Catalog) catalog.Outcome {
		if ok = c.SetDisplayCurrency(code); !ok {
			return catalog.Rejected
		}
		return catalog.Added
	}, catalog.Added)
	return ok, err
}

// mutateCatalog applies change and saves the snapshot when the outcome is
// persistOn. A failed save restores the previous state.
func (s *Service) mutateCatalog(ctx context.Context, op, value string, change func(*catalog.Catalog) catalog.Outcome, persistOn catalog.Outcome) (catalog.Outcome, error) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	before := s.catalog.Snapshot()
	outcome := change(s.catalog)

	log := logger.FromContext(ctx)
	if outcome != persistOn {
		log.Debug().Str("op", op).Str("value", value).Str("outcome", string(outcome)).Msg("Catalog unchanged")
		return outcome, nil
	}

	if err := s.repo.SaveCatalog(ctx, s.catalog.Snapshot()); err != nil {
		s.catalog.Restore(before)
		return outcome, fmt.Errorf("%s %q: saving catalog: %w", op, value, err)
	}

	log.Info().Str("op", op).Str("value", value).Msg("Catalog updated")
	return outcome, nil
}
