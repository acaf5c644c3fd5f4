// Package catalog maintains the category and currency sets: fixed built-in
// members plus user additions that can be removed again.
package catalog

import (
	"slices"
	"strings"
	"sync"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// Outcome reports what an add or remove call did.
type Outcome string

const (
	Added         Outcome = "added"
	AlreadyExists Outcome = "already_exists"
	Rejected      Outcome = "rejected"
	Removed       Outcome = "removed"
	NotFound      Outcome = "not_found"
	Builtin       Outcome = "builtin"
)

// Glyphs shown next to category names.
const (
	CustomGlyph  = "🏷️"
	UnknownGlyph = "📦"
)

var (
	// BuiltinCategories can never be removed.
	BuiltinCategories = []string{"Food", "Travel", "Bills", "Shopping", "Health", "Entertainment", "Rent", "Others"}

	// BuiltinCurrencies can never be removed.
	BuiltinCurrencies = []string{"INR", "USD", "EUR", "GBP"}

	// CurrencySuggestions are offered when adding a currency.
	CurrencySuggestions = []string{"JPY", "CAD", "AUD", "CHF", "CNY", "KRW", "SGD", "AED", "BRL", "MXN"}

	builtinGlyphs = map[string]string{
		"Food":          "🍔",
		"Travel":        "✈️",
		"Bills":         "📄",
		"Shopping":      "🛍️",
		"Health":        "💊",
		"Entertainment": "🎬",
		"Rent":          "🏠",
		"Others":        "📦",
	}
)

// Category is a category name with its display glyph.
type Category struct {
	Name    string `json:"name"`
	Glyph   string `json:"glyph"`
	Builtin bool   `json:"builtin"`
}

// Currency is a currency code and whether it is built in.
type Currency struct {
	Code    string `json:"code"`
	Builtin bool   `json:"builtin"`
}

// Snapshot is the persisted part of a Catalog.
type Snapshot struct {
	CustomCategories []string `json:"custom_categories"`
	CustomCurrencies []string `json:"custom_currencies"`
	DisplayCurrency  string   `json:"display_currency"`
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu               sync.RWMutex
	customCategories []string
	customCurrencies []string
	displayCurrency  string
	glyphs           map[string]string
}

// New creates a catalog holding only the built-in members.
func New() *Catalog {
	glyphs := make(map[string]string, len(builtinGlyphs))
	for name, g := range builtinGlyphs {
		glyphs[name] = g
	}
	return &Catalog{
		displayCurrency: domain.DefaultCurrency,
		glyphs:          glyphs,
	}
}

// Restore replaces the user additions with those in s. Invalid or duplicate
// entries are dropped.
func (c *Catalog) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.customCategories = nil
	c.customCurrencies = nil
	for name := range c.glyphs {
		if _, ok := builtinGlyphs[name]; !ok {
			delete(c.glyphs, name)
		}
	}
	for _, name := range s.CustomCategories {
		c.addCategoryLocked(name)
	}
	for _, code := range s.CustomCurrencies {
		c.addCurrencyLocked(code)
	}

	c.displayCurrency = domain.DefaultCurrency
	if code := normalizeCurrency(s.DisplayCurrency); c.hasCurrencyLocked(code) {
		c.displayCurrency = code
	}
}

// Snapshot returns a copy of the user additions.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		CustomCategories: append([]string{}, c.customCategories...),
		CustomCurrencies: append([]string{}, c.customCurrencies...),
		DisplayCurrency:  c.displayCurrency,
	}
}

// AddCategory adds a custom category. Names are trimmed but not case-folded,
// so "coffee" and "Coffee" are distinct.
func (c *Catalog) AddCategory(name string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addCategoryLocked(name)
}

func (c *Catalog) addCategoryLocked(name string) Outcome {
	name = strings.TrimSpace(name)
	if name == "" {
		return Rejected
	}
	if slices.Contains(BuiltinCategories, name) || slices.Contains(c.customCategories, name) {
		return AlreadyExists
	}
	c.customCategories = append(c.customCategories, name)
	c.glyphs[name] = CustomGlyph
	return Added
}

// RemoveCategory removes a custom category.
func (c *Catalog) RemoveCategory(name string) Outcome {
	name = strings.TrimSpace(name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(BuiltinCategories, name) {
		return Builtin
	}
	idx := slices.Index(c.customCategories, name)
	if idx < 0 {
		return NotFound
	}
	c.customCategories = slices.Delete(c.customCategories, idx, idx+1)
	delete(c.glyphs, name)
	return Removed
}

// HasCategory reports whether name is in the current category set.
func (c *Catalog) HasCategory(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(BuiltinCategories, name) || slices.Contains(c.customCategories, name)
}

// CategoryNames returns built-in then custom category names.
func (c *Catalog) CategoryNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(append([]string{}, BuiltinCategories...), c.customCategories...)
}

// Categories returns every category with its glyph.
func (c *Catalog) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Category, 0, len(BuiltinCategories)+len(c.customCategories))
	for _, name := range BuiltinCategories {
		out = append(out, Category{Name: name, Glyph: c.glyphs[name], Builtin: true})
	}
	for _, name := range c.customCategories {
		out = append(out, Category{Name: name, Glyph: c.glyphs[name]})
	}
	return out
}

// Glyphs returns a copy of the category to glyph mapping.
func (c *Catalog) Glyphs() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.glyphs))
	for k, v := range c.glyphs {
		out[k] = v
	}
	return out
}

// Glyph returns the glyph for name, UnknownGlyph when it is not a category.
func (c *Catalog) Glyph(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if g, ok := c.glyphs[name]; ok {
		return g
	}
	return UnknownGlyph
}

// AddCurrency adds a custom currency. Codes are trimmed and upper-cased so
// "usd" and "USD" are the same entry.
func (c *Catalog) AddCurrency(code string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addCurrencyLocked(code)
}

func (c *Catalog) addCurrencyLocked(code string) Outcome {
	code = normalizeCurrency(code)
	if code == "" {
		return Rejected
	}
	if c.hasCurrencyLocked(code) {
		return AlreadyExists
	}
	c.customCurrencies = append(c.customCurrencies, code)
	return Added
}

// RemoveCurrency removes a custom currency. Removing the display currency
// resets it to the default.
func (c *Catalog) RemoveCurrency(code string) Outcome {
	code = normalizeCurrency(code)

	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(BuiltinCurrencies, code) {
		return Builtin
	}
	idx := slices.Index(c.customCurrencies, code)
	if idx < 0 {
		return NotFound
	}
	c.customCurrencies = slices.Delete(c.customCurrencies, idx, idx+1)
	if c.displayCurrency == code {
		c.displayCurrency = domain.DefaultCurrency
	}
	return Removed
}

// Currencies returns built-in then custom currencies.
func (c *Catalog) Currencies() []Currency {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Currency, 0, len(BuiltinCurrencies)+len(c.customCurrencies))
	for _, code := range BuiltinCurrencies {
		out = append(out, Currency{Code: code, Builtin: true})
	}
	for _, code := range c.customCurrencies {
		out = append(out, Currency{Code: code})
	}
	return out
}

// HasCurrency reports whether code is in the current currency set.
func (c *Catalog) HasCurrency(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasCurrencyLocked(normalizeCurrency(code))
}

func (c *Catalog) hasCurrencyLocked(code string) bool {
	return slices.Contains(BuiltinCurrencies, code) || slices.Contains(c.customCurrencies, code)
}

// DisplayCurrency is the currency totals are shown in and the fallback for
// receipts that do not state one.
func (c *Catalog) DisplayCurrency() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayCurrency
}

// SetDisplayCurrency selects a member of the currency set. It reports false
// and leaves the selection unchanged for unknown codes.
func (c *Catalog) SetDisplayCurrency(code string) bool {
	code = normalizeCurrency(code)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasCurrencyLocked(code) {
		return false
	}
	c.displayCurrency = code
	return true
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
