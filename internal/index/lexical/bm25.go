// Package lexical provides the sparse keyword ranking side of hybrid
// retrieval: a BM25 Okapi index built once over the tokenized chunk corpus
// and read-only afterwards.
package lexical

import (
	"math"
	"strings"
	"unicode"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type Index struct {
	termFreqs []map[string]int
	docLens   []int
	docFreq   map[string]int
	avgDocLen float64
}

// New builds the index from the full chunk corpus. texts[i] must correspond
// to chunk index i; scores stay aligned to that order.
func New(texts []string) *Index {
	ix := &Index{
		termFreqs: make([]map[string]int, len(texts)),
		docLens:   make([]int, len(texts)),
		docFreq:   make(map[string]int),
	}

	totalLen := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		ix.termFreqs[i] = tf
		ix.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for term := range tf {
			ix.docFreq[term]++
		}
	}
	if len(texts) > 0 {
		ix.avgDocLen = float64(totalLen) / float64(len(texts))
	}
	return ix
}

func (ix *Index) Len() int { return len(ix.termFreqs) }

// Score returns BM25 scores for every chunk, aligned to chunk indices.
// Unknown query terms contribute zero.
func (ix *Index) Score(query string) []float64 {
	scores := make([]float64, len(ix.termFreqs))
	if len(ix.termFreqs) == 0 {
		return scores
	}

	n := float64(len(ix.termFreqs))
	for _, term := range Tokenize(query) {
		df, ok := ix.docFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1.0 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i, tf := range ix.termFreqs {
			freq, ok := tf[term]
			if !ok {
				continue
			}
			f := float64(freq)
			norm := 1.0 - bm25B + bm25B*float64(ix.docLens[i])/ix.avgDocLen
			scores[i] += idf * (f * (bm25K1 + 1.0)) / (f + bm25K1*norm)
		}
	}
	return scores
}

// Tokenize lower-cases, splits on anything that is not a letter or digit,
// and drops tokens shorter than 2 runes. Hebrew has no case, so lowering is
// a no-op there; prefixed bound morphemes stay attached (no stemming).
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			token := b.String()
			if len([]rune(token)) >= 2 {
				out = append(out, token)
			}
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}
