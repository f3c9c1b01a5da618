package usecase

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/index/dense"
	"github.com/nadavgross/faculty-rag/internal/index/lexical"
)

type fixedEmbedder struct {
	query []float32
}

func (e *fixedEmbedder) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.query
	}
	return out, nil
}

func (e *fixedEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return e.query, nil
}

// buildRetriever wires a retriever over a corpus whose dense scores are
// fully controlled: each row has a single coordinate so the dot product
// against a [1,1,...] query equals the chosen value.
func buildRetriever(t *testing.T, denseVals []float64, texts []string, urls []string, alpha float64, maxPerURL int) *HybridRetriever {
	t.Helper()
	dims := len(denseVals)
	data := make([]float32, 0, dims*dims)
	for i, v := range denseVals {
		row := make([]float32, dims)
		row[i] = float32(v)
		data = append(data, row...)
	}
	matrix, err := dense.NewMatrix(dims, dims, data)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	chunks := make([]domain.Chunk, dims)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: strconv.Itoa(i), URL: urls[i], Title: "t", Text: texts[i]}
	}
	query := make([]float32, dims)
	for i := range query {
		query[i] = 1
	}
	lex := lexical.New(texts)
	r, err := NewHybridRetriever(matrix, lex, chunks, &fixedEmbedder{query: query}, alpha, maxPerURL)
	if err != nil {
		t.Fatalf("retriever: %v", err)
	}
	return r
}

func TestRetrieveDenseOnlyOrdering(t *testing.T) {
	// alpha=1: lexical scores are ignored, ranking follows dense values.
	texts := []string{"aa bb", "aa bb", "aa bb", "aa bb"}
	urls := []string{"u1", "u2", "u3", "u4"}
	r := buildRetriever(t, []float64{0.2, 0.9, 0.5, 0.1}, texts, urls, 1.0, 2)

	got, err := r.Retrieve(context.Background(), "aa", 4)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	wantOrder := []string{"u2", "u3", "u1", "u4"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d candidates, want %d", len(got), len(wantOrder))
	}
	for i, w := range wantOrder {
		if got[i].Chunk.URL != w {
			t.Errorf("position %d: got %s, want %s", i, got[i].Chunk.URL, w)
		}
	}
	// Normalized best and worst pin the range.
	if got[0].Score != 1 {
		t.Errorf("top score = %f, want 1", got[0].Score)
	}
	if got[3].Score != 0 {
		t.Errorf("bottom score = %f, want 0", got[3].Score)
	}
}

func TestRetrieveLexicalOnlyOrdering(t *testing.T) {
	// alpha=0: dense values are ignored, ranking follows term frequency.
	texts := []string{"cat cat cat", "cat dog", "dog dog dog", "cat cat dog"}
	urls := []string{"u1", "u2", "u3", "u4"}
	r := buildRetriever(t, []float64{0.1, 0.1, 0.9, 0.1}, texts, urls, 0.0, 2)

	got, err := r.Retrieve(context.Background(), "cat", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	if got[0].Chunk.URL != "u1" {
		t.Errorf("top = %s, want u1", got[0].Chunk.URL)
	}
	if got[len(got)-1].Chunk.URL == "u3" {
		t.Errorf("dog-only chunk ranked into top results on a cat query")
	}
}

func TestRetrieveBlendedFormula(t *testing.T) {
	// With identical texts the lexical signal is flat and normalizes to
	// zero, so fused = alpha * normalized dense exactly.
	texts := []string{"same text", "same text", "same text"}
	urls := []string{"u1", "u2", "u3"}
	r := buildRetriever(t, []float64{1.0, 3.0, 2.0}, texts, urls, 0.5, 2)

	got, err := r.Retrieve(context.Background(), "same", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	want := map[string]float64{"u2": 0.5, "u3": 0.25, "u1": 0}
	for _, c := range got {
		if math.Abs(c.Score-want[c.Chunk.URL]) > 1e-12 {
			t.Errorf("%s: score = %f, want %f", c.Chunk.URL, c.Score, want[c.Chunk.URL])
		}
	}
}

func TestRetrievePerURLCap(t *testing.T) {
	texts := []string{"cat", "cat", "cat", "cat", "cat"}
	urls := []string{"same", "same", "same", "other", "other"}
	r := buildRetriever(t, []float64{0.9, 0.8, 0.7, 0.2, 0.1}, texts, urls, 1.0, 2)

	got, err := r.Retrieve(context.Background(), "cat", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	counts := map[string]int{}
	for _, c := range got {
		counts[c.Chunk.URL]++
	}
	if counts["same"] != 2 {
		t.Errorf("url 'same' appears %d times, want 2", counts["same"])
	}
	if counts["other"] != 2 {
		t.Errorf("url 'other' appears %d times, want 2", counts["other"])
	}
}

func TestRetrieveSkipsEmptyURL(t *testing.T) {
	texts := []string{"cat", "cat", "cat"}
	urls := []string{"", "u2", "u3"}
	r := buildRetriever(t, []float64{0.9, 0.5, 0.1}, texts, urls, 1.0, 2)

	got, err := r.Retrieve(context.Background(), "cat", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for _, c := range got {
		if c.Chunk.URL == "" {
			t.Fatalf("candidate with empty URL returned")
		}
	}
	if len(got) != 2 {
		t.Errorf("got %d candidates, want 2", len(got))
	}
}

func TestRetrieveDegenerateScoresAreDeterministic(t *testing.T) {
	// All signals flat: every fused score is zero and ties resolve by
	// chunk index, so repeated calls agree.
	texts := []string{"same", "same", "same", "same"}
	urls := []string{"u1", "u2", "u3", "u4"}
	r := buildRetriever(t, []float64{1, 1, 1, 1}, texts, urls, 0.5, 2)

	first, err := r.Retrieve(context.Background(), "same", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(context.Background(), "same", 3)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].Chunk.URL != first[j].Chunk.URL {
				t.Fatalf("run %d: position %d is %s, was %s", i, j, again[j].Chunk.URL, first[j].Chunk.URL)
			}
		}
	}
	if first[0].Chunk.URL != "u1" || first[1].Chunk.URL != "u2" {
		t.Errorf("tie-break should favor lower index, got %s then %s", first[0].Chunk.URL, first[1].Chunk.URL)
	}
	for _, c := range first {
		if c.Score != 0 {
			t.Errorf("flat signal score = %f, want 0", c.Score)
		}
	}
}

func TestRetrieveKLargerThanCorpus(t *testing.T) {
	texts := []string{"cat", "dog"}
	urls := []string{"u1", "u2"}
	r := buildRetriever(t, []float64{0.9, 0.1}, texts, urls, 1.0, 2)

	got, err := r.Retrieve(context.Background(), "cat", 50)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d candidates, want 2", len(got))
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	matrix, err := dense.NewMatrix(0, 4, nil)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	r, err := NewHybridRetriever(matrix, lexical.New(nil), nil, &fixedEmbedder{}, 0.5, 2)
	if err != nil {
		t.Fatalf("retriever: %v", err)
	}
	got, err := r.Retrieve(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestNewHybridRetrieverRejectsMisalignedInputs(t *testing.T) {
	matrix, err := dense.NewMatrix(2, 2, []float32{1, 0, 0, 1})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	chunks := []domain.Chunk{{ID: "0", URL: "u1"}}
	if _, err := NewHybridRetriever(matrix, lexical.New([]string{"a"}), chunks, &fixedEmbedder{}, 0.5, 2); err == nil {
		t.Fatalf("expected error for row/chunk mismatch")
	}
}
