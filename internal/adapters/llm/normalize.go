package llm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var promoPhrases = []string{"click here", "limited time", "act now", "unsubscribe"}

var promoWords = map[string]struct{}{
	"promotion": {}, "sale": {}, "offer": {}, "discount": {}, "free": {},
	"winner": {}, "congratulations": {}, "bonus": {}, "cash": {}, "prize": {},
}

// categoryKeywords maps common model wording onto the stock categories,
// checked in order.
var categoryKeywords = []struct{ keyword, category string }{
	{"technical", "IT"},
	{"technology", "IT"},
	{"computer", "IT"},
	{"software", "IT"},
	{"hardware", "IT"},
	{"network", "IT"},
	{"human resources", "HR"},
	{"employee", "HR"},
	{"payroll", "HR"},
	{"benefits", "HR"},
	{"accounting", "Finance"},
	{"invoice", "Finance"},
	{"payment", "Finance"},
	{"expense", "Finance"},
	{"office", "Facilities"},
	{"building", "Facilities"},
	{"maintenance", "Facilities"},
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isObviousPromotion catches marketing mail without spending a model call.
func isObviousPromotion(subject string) bool {
	lower := strings.ToLower(subject)
	for _, p := range promoPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, w := range words(subject) {
		if _, ok := promoWords[w]; ok {
			return true
		}
	}
	return false
}

// normalizeCategory maps a suggested name onto one of known: exact match,
// then whole-word overlap, then keyword map, else fallback.
func normalizeCategory(suggested string, known []string, fallback string) string {
	s := strings.TrimSpace(suggested)
	if s == "" {
		return fallback
	}
	for _, k := range known {
		if strings.EqualFold(s, k) {
			return k
		}
	}

	suggestedWords := words(s)
	for _, k := range known {
		for _, w := range suggestedWords {
			if strings.EqualFold(w, k) {
				return k
			}
		}
		if utf8.RuneCountInString(s) >= 3 && strings.Contains(strings.ToLower(k), strings.ToLower(s)) {
			return k
		}
	}

	lower := strings.ToLower(s)
	for _, m := range categoryKeywords {
		if !strings.Contains(lower, m.keyword) {
			continue
		}
		for _, k := range known {
			if strings.EqualFold(k, m.category) {
				return k
			}
		}
	}
	return fallback
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}

// stripFences removes a markdown code fence around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
