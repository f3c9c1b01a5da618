package usecase

import (
	"testing"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
)

func TestIsGreeting(t *testing.T) {
	p := DefaultRoutingPolicy()
	cases := []struct {
		query string
		want  bool
	}{
		{"שלום", true},
		{"שלום!", true},
		{"Hello", true},
		{"hey there", true},
		{"  היי  ", true},
		{"מה נשמע?", true},
		{"good morning", true},
		{"מה שכר הלימוד?", false},
		{"what are the admission requirements", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := p.IsGreeting(tc.query); got != tc.want {
			t.Errorf("IsGreeting(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestIsTooShort(t *testing.T) {
	p := DefaultRoutingPolicy()
	if !p.IsTooShort("אב") {
		t.Errorf("two runes should be too short")
	}
	if !p.IsTooShort("  ab  ") {
		t.Errorf("whitespace must not count toward length")
	}
	if p.IsTooShort("מהם התנאים") {
		t.Errorf("full question flagged as too short")
	}
}

func TestIsReset(t *testing.T) {
	p := DefaultRoutingPolicy()
	for _, q := range []string{"reset", "RESET", " clear "} {
		if !p.IsReset(q) {
			t.Errorf("IsReset(%q) = false", q)
		}
	}
	if p.IsReset("reset my password") {
		t.Errorf("reset requires an exact command, not a prefix")
	}
}

func TestNeedsExactNumber(t *testing.T) {
	p := DefaultRoutingPolicy()
	cases := []struct {
		query string
		want  bool
	}{
		{"כמה עולה התואר?", true},
		{"מה שכר לימוד לשנה?", true},
		{"מתי נפתחת ההרשמה?", true},
		{"מהו המועד אחרון להגשה", true},
		{"מה לומדים בחוג?", false},
		{"ספר לי על הפקולטה", false},
	}
	for _, tc := range cases {
		if got := p.NeedsExactNumber(tc.query); got != tc.want {
			t.Errorf("NeedsExactNumber(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestSourcesHaveDigits(t *testing.T) {
	with := []domain.Candidate{
		{Chunk: domain.Chunk{Text: "ללא מספרים כאן"}},
		{Chunk: domain.Chunk{Text: "שכר הלימוד הוא 13,700 שקלים"}},
	}
	if !sourcesHaveDigits(with) {
		t.Errorf("digits present but not detected")
	}
	without := []domain.Candidate{
		{Chunk: domain.Chunk{Text: "טקסט ללא ספרות"}},
	}
	if sourcesHaveDigits(without) {
		t.Errorf("no digits but detected")
	}
	if sourcesHaveDigits(nil) {
		t.Errorf("empty candidate list reported digits")
	}
}

func TestDetectQueryIntent(t *testing.T) {
	cases := []struct {
		query string
		want  domain.QueryIntent
	}{
		{"כמה עולה שנת לימודים?", domain.IntentNumerical},
		{"what is the price of tuition", domain.IntentNumerical},
		{"איך נרשמים לתואר?", domain.IntentProcedural},
		{"what are the steps to enroll", domain.IntentProcedural},
		{"מי ראש החוג?", domain.IntentFactual},
		{"ספר לי על הפקולטה", domain.IntentGeneral},
	}
	for _, tc := range cases {
		if got := DetectQueryIntent(tc.query); got != tc.want {
			t.Errorf("DetectQueryIntent(%q) = %s, want %s", tc.query, got, tc.want)
		}
	}
}
