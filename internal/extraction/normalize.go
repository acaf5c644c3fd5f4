// Package extraction turns free-form receipt model output into expenses.
//
// Normalization never fails: every missing or malformed field degrades to
// its default, and an unreadable response yields the all-defaults record.
package extraction

import (
	"strings"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/google/uuid"
)

// Normalizer converts raw model text into a domain.Expense.
type Normalizer struct {
	now        func() time.Time
	newID      func() string
	categories CategoryMatcher
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used for the default date.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator sets the expense id generator.
func WithIDGenerator(newID func() string) Option {
	return func(n *Normalizer) { n.newID = newID }
}

// WithCategories validates categories against names instead of the fixed
// extractable set.
func WithCategories(names []string) Option {
	return func(n *Normalizer) { n.categories = MatchCategories(names) }
}

// NewNormalizer creates a Normalizer that validates against
// domain.ExtractableCategories unless configured otherwise.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:        time.Now,
		newID:      uuid.NewString,
		categories: MatchCategories(domain.ExtractableCategories),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = NewNormalizer()

// Normalize converts raw model output using the fixed category set.
func Normalize(raw, fallbackCurrency string) domain.Expense {
	return defaultNormalizer.Normalize(raw, fallbackCurrency)
}

// Normalize extracts the first JSON object from raw and resolves every field
// through its rule list.
func (n *Normalizer) Normalize(raw, fallbackCurrency string) domain.Expense {
	obj, ok := findObject(stripCodeFences(raw))
	if !ok {
		return n.Defaults(fallbackCurrency)
	}

	category := domain.CatchAllCategory
	if name := Resolve(obj, CategoryRules, ""); name != "" {
		if canonical, ok := n.categories(name); ok {
			category = canonical
		}
	}

	return domain.Expense{
		ID:            n.newID(),
		Merchant:      Resolve(obj, MerchantRules, domain.UnknownMerchant),
		Amount:        Resolve(obj, AmountRules, 0),
		Currency:      Resolve(obj, CurrencyRules, fallbackCode(fallbackCurrency)),
		Date:          Resolve(obj, DateRules, domain.Today(n.now())),
		Category:      category,
		PaymentMethod: Resolve(obj, PaymentRules, domain.DefaultPaymentMethod),
	}
}

// Defaults returns the record used when nothing could be extracted.
func (n *Normalizer) Defaults(fallbackCurrency string) domain.Expense {
	return domain.Expense{
		ID:            n.newID(),
		Merchant:      domain.UnknownMerchant,
		Amount:        0,
		Currency:      fallbackCode(fallbackCurrency),
		Date:          domain.Today(n.now()),
		Category:      domain.CatchAllCategory,
		PaymentMethod: domain.DefaultPaymentMethod,
	}
}

// IsUsable reports whether e carries anything read from the receipt.
func IsUsable(e domain.Expense) bool {
	return e.Merchant != domain.UnknownMerchant || e.Amount > 0
}

func fallbackCode(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return domain.DefaultCurrency
	}
	return currency
}
