package query

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// RangeKind selects how expenses are bucketed by date.
type RangeKind string

const (
	AllTime   RangeKind = "all_time"
	ThisMonth RangeKind = "this_month"
	LastMonth RangeKind = "last_month"
	Custom    RangeKind = "custom"
)

// AllCategories disables category filtering.
const AllCategories = "All"

// DateRange is a date predicate. Start and End are only used by Custom and
// are both inclusive.
type DateRange struct {
	Kind  RangeKind
	Start civil.Date
	End   civil.Date
}

// CustomRange builds a Custom range. A start after end matches nothing.
func CustomRange(start, end civil.Date) DateRange {
	return DateRange{Kind: Custom, Start: start, End: end}
}

// Criteria is the current filter selection.
type Criteria struct {
	Range    DateRange
	Category string // "" or AllCategories for no filtering
}

// ParseRangeKind accepts the API spellings of a range kind.
func ParseRangeKind(s string) (RangeKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all_time":
		return AllTime, true
	case "this_month":
		return ThisMonth, true
	case "last_month":
		return LastMonth, true
	case "custom":
		return Custom, true
	}
	return "", false
}

// contains reports whether d falls in the range, relative to today.
func (r DateRange) contains(d, today civil.Date) bool {
	switch r.Kind {
	case ThisMonth:
		return !d.Before(firstOfMonth(today))
	case LastMonth:
		last := firstOfMonth(today).AddDays(-1)
		return !d.Before(firstOfMonth(last)) && !d.After(last)
	case Custom:
		return !d.Before(r.Start) && !d.After(r.End)
	}
	return true
}

func firstOfMonth(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// ParseExpenseDate reads a stored expense date. RFC 3339 timestamps are
// accepted for records written by older clients.
func ParseExpenseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(t), true
	}
	return civil.Date{}, false
}

// ParseRangeDate reads a user-typed range bound: YYYY-MM-DD or dd/mm/yy
// (two-digit years are taken as 20yy).
func ParseRangeDate(text string) (civil.Date, bool) {
	text = strings.TrimSpace(text)
	if d, err := civil.ParseDate(text); err == nil {
		return d, true
	}

	parts := strings.Split(text, "/")
	if len(parts) != 3 {
		return civil.Date{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return civil.Date{}, false
		}
		nums[i] = n
	}
	year := nums[2]
	if year < 100 {
		year += 2000
	}
	d := civil.Date{Year: year, Month: time.Month(nums[1]), Day: nums[0]}
	if !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}
