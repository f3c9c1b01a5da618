// Package langguard enforces the two-script output policy (Hebrew + Latin)
// on retrieved source text and on generated answers.
package langguard

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	hebrewLo = 0x0590
	hebrewHi = 0x05FF

	// Detection samples kept per category for diagnostics.
	maxSamples = 3
)

// allowedPunct is the fixed punctuation set kept by Clean.
const allowedPunct = `.,!?;:()'"[]{}+-=/*@#$%&<>`

// ScriptRange is a closed Unicode code point interval.
type ScriptRange struct {
	Lo rune `yaml:"lo"`
	Hi rune `yaml:"hi"`
}

// Category is a named set of unwanted code point ranges.
type Category struct {
	Name   string        `yaml:"name"`
	Ranges []ScriptRange `yaml:"ranges"`
}

type Config struct {
	Unwanted []Category

	// Hebrew-ratio thresholds. Queries use a lower bar so short Hebrew
	// questions still route to a Hebrew response; document tagging favors
	// precision.
	QueryHebrewThreshold    float64
	DocumentHebrewThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Unwanted: []Category{
			{Name: "arabic", Ranges: []ScriptRange{{0x0600, 0x06FF}}},
			{Name: "cyrillic", Ranges: []ScriptRange{{0x0400, 0x04FF}}},
			{Name: "han", Ranges: []ScriptRange{{0x4E00, 0x9FFF}}},
			{Name: "hangul", Ranges: []ScriptRange{{0xAC00, 0xD7AF}}},
			{Name: "hiragana", Ranges: []ScriptRange{{0x3040, 0x309F}}},
			{Name: "katakana", Ranges: []ScriptRange{{0x30A0, 0x30FF}}},
		},
		QueryHebrewThreshold:    0.15,
		DocumentHebrewThreshold: 0.20,
	}
}

type Guard struct {
	cfg Config
}

func New(cfg Config) *Guard {
	if len(cfg.Unwanted) == 0 {
		cfg.Unwanted = DefaultConfig().Unwanted
	}
	if cfg.QueryHebrewThreshold <= 0 {
		cfg.QueryHebrewThreshold = DefaultConfig().QueryHebrewThreshold
	}
	if cfg.DocumentHebrewThreshold <= 0 {
		cfg.DocumentHebrewThreshold = DefaultConfig().DocumentHebrewThreshold
	}
	return &Guard{cfg: cfg}
}

// Detection reports one unwanted script category found in a text.
type Detection struct {
	Category string
	Count    int
	Samples  []rune
}

// Detect returns the unwanted script categories present in text, sorted by
// category name. Never errors; empty input yields nil.
func (g *Guard) Detect(text string) []Detection {
	found := make(map[string]*Detection)
	for _, r := range text {
		for i := range g.cfg.Unwanted {
			cat := &g.cfg.Unwanted[i]
			if !inRanges(r, cat.Ranges) {
				continue
			}
			d, ok := found[cat.Name]
			if !ok {
				d = &Detection{Category: cat.Name}
				found[cat.Name] = d
			}
			d.Count++
			if len(d.Samples) < maxSamples {
				d.Samples = append(d.Samples, r)
			}
		}
	}
	if len(found) == 0 {
		return nil
	}
	out := make([]Detection, 0, len(found))
	for _, d := range found {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Clean removes every character outside the allow-list: the Hebrew block,
// ASCII letters, digits, whitespace, and a fixed punctuation set. Lossy and
// idempotent.
func (g *Guard) Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= hebrewLo && r <= hebrewHi:
			b.WriteRune(r)
		case r < 128 && unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune(allowedPunct, r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether text satisfies the two-script policy. Invalid when
// the text has no alphabetic content, or when detected unwanted characters
// exceed 5% of all alphabetic characters. Exactly 5% is tolerated: incidental
// foreign characters (a proper noun) must not reject otherwise-valid text.
func (g *Guard) Validate(text string) (bool, string) {
	if text == "" {
		return false, ""
	}

	detections := g.Detect(text)

	alpha := 0
	unwantedAlpha := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		alpha++
		if r >= hebrewLo && r <= hebrewHi {
			continue
		}
		if r < 128 {
			continue
		}
		unwantedAlpha++
	}

	if alpha == 0 {
		return false, "no meaningful content"
	}
	if len(detections) == 0 {
		return true, ""
	}

	// unwanted/alpha > 0.05, exact integer comparison at the boundary.
	if unwantedAlpha*20 > alpha {
		return false, fmt.Sprintf("unwanted scripts %s exceed 5%% of alphabetic content", describe(detections))
	}
	return true, ""
}

// HebrewRatio is the fraction of alphabetic characters in the Hebrew block.
func (g *Guard) HebrewRatio(text string) float64 {
	heb, alpha := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		alpha++
		if r >= hebrewLo && r <= hebrewHi {
			heb++
		}
	}
	if alpha == 0 {
		return 0
	}
	return float64(heb) / float64(alpha)
}

func (g *Guard) IsHebrewQuery(text string) bool {
	return g.HebrewRatio(text) >= g.cfg.QueryHebrewThreshold
}

func (g *Guard) IsHebrewDocument(text string) bool {
	return g.HebrewRatio(text) >= g.cfg.DocumentHebrewThreshold
}

func inRanges(r rune, ranges []ScriptRange) bool {
	for _, rg := range ranges {
		if r >= rg.Lo && r <= rg.Hi {
			return true
		}
	}
	return false
}

func describe(detections []Detection) string {
	parts := make([]string, 0, len(detections))
	for _, d := range detections {
		parts = append(parts, fmt.Sprintf("%s(%s)", d.Category, string(d.Samples)))
	}
	return strings.Join(parts, ", ")
}
