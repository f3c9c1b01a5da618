package usecase

import (
	"strings"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
)

const (
	// Rough character-per-token ratio that holds for mixed Hebrew/Latin text.
	charsPerToken = 4

	// Fixed per-source overhead on top of URL and title, covering the
	// rendered header line and separators.
	headerOverheadBase = 50

	// Below this many characters a truncated chunk is too fragmentary to
	// help the model; packing stops instead of skipping ahead.
	minViableText = 200

	truncationMarker = "..."
)

// fitSourcesToBudget greedily packs ranked candidates into a character budget
// of maxTokens*4. Each accepted source costs its text length plus a header
// overhead of len(URL)+len(title)+headerOverheadBase; the cumulative cost
// never exceeds the budget. Lengths are counted in runes. Always returns a
// prefix of the input, possibly empty.
func fitSourcesToBudget(ranked []domain.Candidate, maxTokens int) []domain.FittedSource {
	budget := maxTokens * charsPerToken
	used := 0

	fitted := make([]domain.FittedSource, 0, len(ranked))
	for _, cand := range ranked {
		headerCost := runeLen(cand.Chunk.URL) + runeLen(cand.Chunk.Title) + headerOverheadBase
		allowed := budget - used - headerCost
		if allowed < minViableText {
			break
		}

		text := cand.Chunk.Text
		truncated := false
		if runeLen(text) > allowed {
			text = truncateAtBoundary(text, allowed)
			truncated = true
		}

		chunk := cand.Chunk
		chunk.Text = text
		fitted = append(fitted, domain.FittedSource{
			Score:     cand.Score,
			Chunk:     chunk,
			Truncated: truncated,
		})
		used += runeLen(text) + headerCost
	}
	return fitted
}

// truncateAtBoundary cuts text to at most limit runes including the trailing
// truncation marker. It prefers the last sentence boundary inside the limit,
// then the last newline, then a hard cut.
func truncateAtBoundary(text string, limit int) string {
	runes := []rune(text)
	cut := limit - len([]rune(truncationMarker))
	if cut <= 0 {
		return truncationMarker[:min(limit, len(truncationMarker))]
	}
	if cut > len(runes) {
		cut = len(runes)
	}
	head := string(runes[:cut])

	// A boundary at position 0 would leave no text at all; treat it as no
	// boundary and fall through to the next preference.
	if i := strings.LastIndexByte(head, '.'); i > 0 {
		head = head[:i]
	} else if i := strings.LastIndexByte(head, '\n'); i > 0 {
		head = head[:i]
	}
	return head + truncationMarker
}

func runeLen(s string) int {
	return len([]rune(s))
}
