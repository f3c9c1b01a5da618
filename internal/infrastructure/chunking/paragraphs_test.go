package chunking

import (
	"strings"
	"testing"
)

func TestSplitAccumulatesParagraphs(t *testing.T) {
	s := NewSplitter(100, 0)
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"
	got := s.Split(text)
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
	if got[0] != "first paragraph\nsecond paragraph\nthird paragraph" {
		t.Errorf("unexpected chunk: %q", got[0])
	}
}

func TestSplitBreaksAtCap(t *testing.T) {
	s := NewSplitter(50, 0)
	a := strings.Repeat("a", 30)
	b := strings.Repeat("b", 30)
	got := s.Split(a + "\n" + b)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0] != a || got[1] != b {
		t.Errorf("unexpected chunks: %q / %q", got[0], got[1])
	}
}

func TestSplitCarriesOverlap(t *testing.T) {
	s := NewSplitter(50, 10)
	a := strings.Repeat("a", 30)
	b := strings.Repeat("b", 30)
	got := s.Split(a + "\n" + b)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if !strings.HasPrefix(got[1], strings.Repeat("a", 10)) {
		t.Errorf("second chunk missing overlap tail: %q", got[1])
	}
	if !strings.HasSuffix(got[1], b) {
		t.Errorf("second chunk missing own paragraph: %q", got[1])
	}
}

func TestSplitCarvesOversizedParagraph(t *testing.T) {
	s := NewSplitter(100, 20)
	huge := strings.Repeat("x", 250)
	got := s.Split(huge)
	if len(got) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(got))
	}
	for i, c := range got {
		if n := len([]rune(c)); n > 100 {
			t.Errorf("chunk %d has %d runes, cap is 100", i, n)
		}
	}
}

func TestSplitHebrewRunesNotBytes(t *testing.T) {
	s := NewSplitter(50, 0)
	// 40 Hebrew letters are 80 bytes; a byte-based cap would split this.
	p := strings.Repeat("ש", 40)
	got := s.Split(p)
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
}

func TestSplitEmptyAndWhitespace(t *testing.T) {
	s := NewSplitter(100, 10)
	if got := s.Split(""); got != nil {
		t.Errorf("empty input produced %v", got)
	}
	if got := s.Split("\n  \n\t\n"); got != nil {
		t.Errorf("whitespace input produced %v", got)
	}
}
