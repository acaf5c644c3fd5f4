package extraction

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Rule reads one candidate value from the decoded model object. It reports
// false when the value is absent or unusable so the next rule can run.
type Rule[T any] func(obj map[string]any) (T, bool)

// Resolve returns the value of the first rule that applies, or fallback.
func Resolve[T any](obj map[string]any, rules []Rule[T], fallback T) T {
	for _, rule := range rules {
		if v, ok := rule(obj); ok {
			return v
		}
	}
	return fallback
}

// Field resolution order for each expense field.
var (
	MerchantRules = []Rule[string]{TextKey("merchant"), TextKey("store"), TextKey("name")}
	AmountRules   = []Rule[float64]{AmountKey("total_amount"), AmountKey("amount"), AmountKey("total")}
	CurrencyRules = []Rule[string]{CodeKey("currency")}
	DateRules     = []Rule[string]{TextKey("date")}
	CategoryRules = []Rule[string]{TextKey("category")}
	PaymentRules  = []Rule[string]{TextKey("payment_method"), TextKey("payment")}
)

// TextKey accepts a non-blank string under key, trimmed.
func TextKey(key string) Rule[string] {
	return func(obj map[string]any) (string, bool) {
		s, ok := obj[key].(string)
		if !ok {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
}

// CodeKey is TextKey with the value upper-cased.
func CodeKey(key string) Rule[string] {
	text := TextKey(key)
	return func(obj map[string]any) (string, bool) {
		s, ok := text(obj)
		return strings.ToUpper(s), ok
	}
}

// AmountKey accepts a JSON number or a money string under key. Negative and
// non-finite values are rejected.
func AmountKey(key string) Rule[float64] {
	return func(obj map[string]any) (float64, bool) {
		var v float64
		switch val := obj[key].(type) {
		case float64:
			v = val
		case string:
			parsed, ok := ParseAmount(val)
			if !ok {
				return 0, false
			}
			v = parsed
		default:
			return 0, false
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0, false
		}
		return v, true
	}
}

// leadingNumber is the decimal prefix read from a cleaned amount; trailing
// text such as "INR" or "/-" is ignored.
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseAmount parses text such as "₹1,234.50", "$ 12" or "150/-" as a
// decimal number, reading only the leading number.
func ParseAmount(text string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '₹', r == '$', r == '€', r == '£', r == ',':
			return -1
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, text)
	number := leadingNumber.FindString(cleaned)
	if number == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CategoryMatcher maps a raw category to its canonical name when it belongs
// to the accepted set.
type CategoryMatcher func(raw string) (string, bool)

// MatchCategories accepts names from the given set. The raw value is first
// capitalized ("food" -> "Food") and compared exactly, then compared
// case-insensitively so multi-word custom names still match.
func MatchCategories(names []string) CategoryMatcher {
	set := append([]string(nil), names...)
	return func(raw string) (string, bool) {
		raw = strings.TrimSpace(raw)
		norm := capitalize(raw)
		for _, name := range set {
			if name == norm {
				return name, true
			}
		}
		for _, name := range set {
			if strings.EqualFold(name, raw) {
				return name, true
			}
		}
		return "", false
	}
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
