package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/query"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

// parseListArgs reads the list filters. -start and -end are required with
// -range custom and accept YYYY-MM-DD or dd/mm/yy.
func parseListArgs(args []string) (query.Criteria, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rangeName := fs.String("range", "all", "all, this_month, last_month or custom")
	start := fs.String("start", "", "First day of a custom range")
	end := fs.String("end", "", "Last day of a custom range")
	category := fs.String("category", query.AllCategories, "Category to show, or All")
	if err := fs.Parse(args); err != nil {
		return query.Criteria{}, err
	}

	kind, ok := query.ParseRangeKind(*rangeName)
	if !ok {
		return query.Criteria{}, fmt.Errorf("unknown range %q", *rangeName)
	}
	criteria := query.Criteria{Range: query.DateRange{Kind: kind}, Category: *category}
	if kind != query.Custom {
		return criteria, nil
	}

	from, ok := query.ParseRangeDate(*start)
	if !ok {
		return query.Criteria{}, fmt.Errorf("invalid -start %q", *start)
	}
	to, ok := query.ParseRangeDate(*end)
	if !ok {
		return query.Criteria{}, fmt.Errorf("invalid -end %q", *end)
	}
	criteria.Range = query.CustomRange(from, to)
	return criteria, nil
}

func glyphMap(categories []catalog.Category) map[string]string {
	glyphs := make(map[string]string, len(categories))
	for _, c := range categories {
		glyphs[c.Name] = c.Glyph
	}
	return glyphs
}

// printExpenses writes the expense table followed by per-category totals.
// Amounts are summed as numbers regardless of their currency.
func printExpenses(w io.Writer, result query.Result, glyphs map[string]string, displayCurrency string) {
	if result.Count == 0 {
		fmt.Fprintln(w, "No expenses found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tMERCHANT\tCATEGORY\tAMOUNT\tPAYMENT\tID")
	for _, e := range result.Expenses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f %s\t%s\t%s\n",
			e.Date, e.Merchant, withGlyph(glyphs, e.Category), e.Amount, e.Currency, e.PaymentMethod, e.ID)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d expenses, total %.2f %s\n", result.Count, result.Total, displayCurrency)
	for _, ct := range result.ByCategory {
		fmt.Fprintf(w, "  %s: %.2f (%d)\n", withGlyph(glyphs, ct.Category), ct.Total, ct.Count)
	}
}

func withGlyph(glyphs map[string]string, category string) string {
	glyph, ok := glyphs[category]
	if !ok {
		glyph = catalog.UnknownGlyph
	}
	return glyph + " " + category
}

func printScanResult(w io.Writer, result tracker.ScanResult) {
	for _, item := range result.Items {
		switch item.Status {
		case pipeline.StatusOK:
			e := item.Expense
			fmt.Fprintf(w, "ok        %s: %s %.2f %s on %s (%s)\n", item.URI, e.Merchant, e.Amount, e.Currency, e.Date, e.Category)
		case pipeline.StatusFailed:
			fmt.Fprintf(w, "failed    %s: %s\n", item.URI, item.Error)
		default:
			fmt.Fprintf(w, "%-9s %s\n", item.Status, item.URI)
		}
	}
	if result.Notice != "" {
		fmt.Fprintf(w, "\n%s\n", result.Notice)
		return
	}
	fmt.Fprintf(w, "\nSaved %d of %d receipts.\n", result.Saved, len(result.Items))
}

func printCategories(w io.Writer, categories []catalog.Category) {
	for _, c := range categories {
		kind := "custom"
		if c.Builtin {
			kind = "built-in"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", c.Glyph, c.Name, kind)
	}
}

func printCurrencies(w io.Writer, view tracker.CatalogView) {
	codes := make([]string, 0, len(view.Currencies))
	for _, c := range view.Currencies {
		code := c.Code
		if code == view.DisplayCurrency {
			code += "*"
		}
		codes = append(codes, code)
	}
	fmt.Fprintf(w, "Currencies: %s\n", strings.Join(codes, ", "))
	fmt.Fprintf(w, "Display currency: %s\n", view.DisplayCurrency)
	if len(view.CurrencySuggestions) > 0 {
		fmt.Fprintf(w, "Suggestions: %s\n", strings.Join(view.CurrencySuggestions, ", "))
	}
}

func describeOutcome(value string, outcome catalog.Outcome) string {
	switch outcome {
	case catalog.Added:
		return fmt.Sprintf("Added %s", value)
	case catalog.AlreadyExists:
		return fmt.Sprintf("%s already exists", value)
	case catalog.Rejected:
		return "Nothing to add: the value is blank"
	case catalog.Removed:
		return fmt.Sprintf("Removed %s", value)
	case catalog.NotFound:
		return fmt.Sprintf("%s was not found", value)
	case catalog.Builtin:
		return fmt.Sprintf("%s is built in and cannot be removed", value)
	}
	return string(outcome)
}
