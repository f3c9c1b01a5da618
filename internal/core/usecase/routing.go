package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
)

// nonWordRunes collapses everything outside letters, digits and underscore,
// so greeting matching ignores punctuation in both scripts.
var nonWordRunes = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// RoutingPolicy holds the phrase lists that short-circuit a query before
// retrieval. The zero value routes nothing; use DefaultRoutingPolicy or load
// a policy file.
type RoutingPolicy struct {
	Greetings       []string
	NumericTriggers []string
	ResetCommands   []string
	MinQueryLen     int
}

func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		Greetings: []string{
			"hi", "hello", "hey", "good morning", "good evening",
			"shalom", "salam",
			"שלום", "היי", "הי", "אהלן", "סלאם", "מה נשמע", "מה קורה",
		},
		NumericTriggers: []string{
			"שכר לימוד", "כמה עולה", "עלות", "מחיר",
			"דדליין", "מועד אחרון", "תאריך", "מתי", "עד מתי",
			"מדויק", "בדיוק", "סכום",
		},
		ResetCommands: []string{"reset", "clear"},
		MinQueryLen:   4,
	}
}

// IsGreeting reports whether the query, lowercased and stripped of
// punctuation, exactly matches or begins with one of the greeting phrases.
func (p RoutingPolicy) IsGreeting(query string) bool {
	q := strings.TrimSpace(nonWordRunes.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), " "))
	if q == "" {
		return false
	}
	for _, g := range p.Greetings {
		if q == g || strings.HasPrefix(q, g) {
			return true
		}
	}
	return false
}

func (p RoutingPolicy) IsTooShort(query string) bool {
	return len([]rune(strings.TrimSpace(query))) < p.MinQueryLen
}

func (p RoutingPolicy) IsReset(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, c := range p.ResetCommands {
		if q == c {
			return true
		}
	}
	return false
}

// NeedsExactNumber reports whether the query asks for a figure (price, date,
// deadline) that must come verbatim from a source.
func (p RoutingPolicy) NeedsExactNumber(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, t := range p.NumericTriggers {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// sourcesHaveDigits reports whether any retrieved chunk carries a digit,
// the precondition for answering a numeric-precision query.
func sourcesHaveDigits(picked []domain.Candidate) bool {
	for _, c := range picked {
		for _, r := range c.Chunk.Text {
			if unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}

var (
	numericalKeywords = []string{
		"כמה", "מחיר", "עלות", "שכר", "תאריך", "מועד",
		"how much", "price", "cost", "when", "date",
	}
	proceduralKeywords = []string{
		"איך", "כיצד", "תהליך", "שלבים", "מה צריך",
		"how", "process", "steps", "procedure",
	}
	factualKeywords = []string{
		"מה זה", "מי", "איפה", "מהו",
		"what is", "who", "where", "which",
	}
)

// DetectQueryIntent classifies a question for interaction logging. Checks
// run in priority order; the first keyword family that matches wins.
func DetectQueryIntent(query string) domain.QueryIntent {
	q := strings.ToLower(query)
	if containsAny(q, numericalKeywords) {
		return domain.IntentNumerical
	}
	if containsAny(q, proceduralKeywords) {
		return domain.IntentProcedural
	}
	if containsAny(q, factualKeywords) {
		return domain.IntentFactual
	}
	return domain.IntentGeneral
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
