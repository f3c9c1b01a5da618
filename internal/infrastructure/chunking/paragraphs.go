// Package chunking splits extracted page text into retrievable chunks.
// Paragraphs are accumulated up to a size cap with a small character overlap
// carried between consecutive chunks, which keeps sentences that straddle a
// boundary findable from both sides.
package chunking

import "strings"

type Splitter struct {
	MaxChars     int
	OverlapChars int
}

func NewSplitter(maxChars, overlapChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = 2400
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 8
	}
	return &Splitter{
		MaxChars:     maxChars,
		OverlapChars: overlapChars,
	}
}

func (s *Splitter) Split(text string) []string {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil
	}

	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(cur, "\n"))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if s.OverlapChars > 0 && chunk != "" {
			tail := tailRunes(chunk, s.OverlapChars)
			cur = []string{tail}
			curLen = len([]rune(tail))
		} else {
			cur = nil
			curLen = 0
		}
	}

	for _, p := range paras {
		pLen := len([]rune(p))

		// An oversized paragraph is carved directly with overlap.
		if pLen > s.MaxChars {
			if len(cur) > 0 {
				flush()
				cur = nil
				curLen = 0
			}
			chunks = append(chunks, s.carve(p)...)
			continue
		}

		if curLen+pLen+1 <= s.MaxChars {
			cur = append(cur, p)
			curLen += pLen + 1
		} else {
			flush()
			cur = append(cur, p)
			curLen += pLen
		}
	}

	flush()
	return chunks
}

func (s *Splitter) carve(paragraph string) []string {
	runes := []rune(paragraph)
	var out []string
	start := 0
	for start < len(runes) {
		end := start + s.MaxChars
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
		if s.OverlapChars > 0 {
			start = end - s.OverlapChars
		} else {
			start = end
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
