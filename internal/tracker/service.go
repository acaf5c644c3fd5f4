// Package tracker is the application service: it scans receipts into the
// ledger, edits and queries expenses, and manages the category and currency sets.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/query"
)

// NoUsableNotice is reported when a scan batch yields nothing to save.
const NoUsableNotice = "could not extract data from the receipts"

var (
	// ErrInvalidExpense wraps every validation failure of manual input.
	ErrInvalidExpense = errors.New("invalid expense")

	// ErrNoImages is returned for an empty scan request.
	ErrNoImages = errors.New("no images to scan")
)

// Scanner runs a batch of receipt images through extraction.
type Scanner interface {
	Scan(ctx context.Context, uris []string, opts pipeline.ScanOptions) pipeline.BatchResult
}

// Service coordinates the ledger, the catalog and the scanner.
type Service struct {
	repo    ledger.Repository
	catalog *catalog.Catalog
	scanner Scanner
	now     func() time.Time
	newID   func() string

	// catalogMu serializes catalog changes with their persistence.
	catalogMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for creation times and relative ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the id generator for manually created expenses.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// New creates a Service and restores the catalog from repo. When nothing is
// stored yet, defaultDisplay becomes the display currency if it is a member.
func New(ctx context.Context, repo ledger.Repository, scanner Scanner, defaultDisplay string, opts ...Option) (*Service, error) {
	s := &Service{
		repo:    repo,
		catalog: catalog.New(),
		scanner: scanner,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := repo.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker.New: loading catalog: %w", err)
	}
	if snap.DisplayCurrency == "" {
		snap.DisplayCurrency = defaultDisplay
	}
	s.catalog.Restore(snap)

	return s, nil
}

// ScanResult reports a scan batch.
type ScanResult struct {
	Items  []pipeline.ItemResult `json:"items"`
	Saved  int                   `json:"saved"`
	Notice string                `json:"notice,omitempty"`
}

// ScanReceipts extracts an expense from each image and appends the usable
// ones to the ledger in a single write once the whole batch has finished.
// Items completed before ctx was cancelled are still saved.
func (s *Service) ScanReceipts(ctx context.Context, uris []string) (ScanResult, error) {
	if len(uris) == 0 {
		return ScanResult{}, ErrNoImages
	}
	if s.scanner == nil {
		return ScanResult{}, fmt.Errorf("ScanReceipts: receipt scanning is not configured")
	}

	log := logger.FromContext(ctx)

	batch := s.scanner.Scan(ctx, uris, pipeline.ScanOptions{
		Categories:       s.catalog.CategoryNames(),
		FallbackCurrency: s.catalog.DisplayCurrency(),
	})

	created := s.now().UTC()
	var usable []domain.Expense
	for i := range batch.Items {
		item := &batch.Items[i]
		if item.Expense == nil {
			continue
		}
		item.Expense.CreatedAt = created
		if item.Status == pipeline.StatusOK {
			usable = append(usable, *item.Expense)
		}
	}

	result := ScanResult{Items: batch.Items}
	if len(usable) == 0 {
		result.Notice = NoUsableNotice
		log.Warn().Int("images", len(uris)).Msg(NoUsableNotice)
		return result, nil
	}

	if err := s.repo.InsertExpenses(context.WithoutCancel(ctx), usable); err != nil {
		return result, fmt.Errorf("ScanReceipts: saving %d expenses: %w", len(usable), err)
	}
	result.Saved = len(usable)

	log.Info().Int("images", len(uris)).Int("saved", result.Saved).Msg("Scanned receipts saved")
	return result, nil
}

// ExpenseInput is a manually entered or edited expense.
type ExpenseInput struct {
	Merchant      string  `json:"merchant"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Date          string  `json:"date"`
	Category      string  `json:"category"`
	PaymentMethod string  `json:"payment_method"`
}

// CreateExpense validates in and stores it as a new expense.
func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (domain.Expense, error) {
	e, err := s.validate(in, domain.Expense{})
	if err != nil {
		return domain.Expense{}, err
	}
	e.ID = s.newID()
	e.CreatedAt = s.now().UTC()

	if err := s.repo.InsertExpenses(ctx, []domain.Expense{e}); err != nil {
		return domain.Expense{}, fmt.Errorf("CreateExpense: %w", err)
	}

	log := logger.WithExpense(logger.FromContext(ctx), e.ID)
	log.Info().Str("merchant", e.Merchant).Float64("amount", e.Amount).Msg("Expense created")
	return e, nil
}

// GetExpense returns one expense or ledger.ErrNotFound.
func (s *Service) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// ReplaceExpense overwrites the whole record with the given id, keeping its
// id and creation time. A date or category left as stored is accepted even
// when it would not be valid input, so scanned records stay editable.
func (s *Service) ReplaceExpense(ctx context.Context, id string, in ExpenseInput) (domain.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}

	e, err := s.validate(in, existing)
	if err != nil {
		return domain.Expense{}, err
	}
	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt

	if err := s.repo.ReplaceExpense(ctx, e); err != nil {
		return domain.Expense{}, fmt.Errorf("ReplaceExpense: %w", err)
	}

	log := logger.WithExpense(logger.FromContext(ctx), id)
	log.Info().Msg("Expense replaced")
	return e, nil
}

// DeleteExpense removes the expense with the given id.
func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	log := logger.WithExpense(logger.FromContext(ctx), id)
	log.Info().Msg("Expense deleted")
	return nil
}

// Query filters, orders and totals the ledger.
func (s *Service) Query(ctx context.Context, c query.Criteria) (query.Result, error) {
	expenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("Query: listing expenses: %w", err)
	}
	return query.Run(expenses, c, s.now()), nil
}

// validate checks in and fills defaults. Date and category values equal to
// those of stored are kept as they are.
func (s *Service) validate(in ExpenseInput, stored domain.Expense) (domain.Expense, error) {
	var problems []string

	merchant := strings.TrimSpace(in.Merchant)
	if merchant == "" {
		problems = append(problems, "merchant is required")
	}

	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0 {
		problems = append(problems, "amount must be a non-negative number")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.catalog.DisplayCurrency()
	}

	date := strings.TrimSpace(in.Date)
	switch d, ok := query.ParseExpenseDate(date); {
	case stored.Date != "" && date == stored.Date:
	case date == "":
		date = domain.Today(s.now())
	case ok:
		date = d.String()
	default:
		problems = append(problems, fmt.Sprintf("invalid date %q: use YYYY-MM-DD", in.Date))
	}

	category := domain.CatchAllCategory
	if name := strings.TrimSpace(in.Category); stored.Category != "" && name == stored.Category {
		category = name
	} else if name != "" {
		canonical, ok := s.canonicalCategory(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown category %q", name))
		}
		category = canonical
	}

	payment := strings.TrimSpace(in.PaymentMethod)
	if payment == "" {
		payment = domain.DefaultPaymentMethod
	}

	if len(problems) > 0 {
		return domain.Expense{}, fmt.Errorf("%w: %s", ErrInvalidExpense, strings.Join(problems, "; "))
	}

	return domain.Expense{
		Merchant:      merchant,
		Amount:        in.Amount,
		Currency:      currency,
		Date:          date,
		Category:      category,
		PaymentMethod: payment,
	}, nil
}

// canonicalCategory prefers an exact match, then a case-insensitive one.
func (s *Service) canonicalCategory(name string) (string, bool) {
	names := s.catalog.CategoryNames()
	if slices.Contains(names, name) {
		return name, true
	}
	for _, c := range names {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}
