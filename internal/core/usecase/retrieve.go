package usecase

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/core/ports"
	"github.com/nadavgross/faculty-rag/internal/index/dense"
	"github.com/nadavgross/faculty-rag/internal/index/lexical"
)

const (
	// Overfetch multiplier: enough headroom that the per-URL cap rarely
	// drains the candidate pool before k results, while bounding sort cost.
	overfetchFactor = 4

	defaultTopK      = 5
	defaultMaxPerURL = 2

	// Range below this is treated as a flat signal and normalized to zero.
	degenerateRangeEps = 1e-8
)

// HybridRetriever merges the lexical and dense rankings into a single
// ordered, URL-deduplicated candidate list. Both indices are read-only after
// construction and safe to share across concurrent queries.
type HybridRetriever struct {
	matrix    *dense.Matrix
	lexIndex  *lexical.Index
	chunks    []domain.Chunk
	embedder  ports.Embedder
	alpha     float64
	maxPerURL int
}

func NewHybridRetriever(
	matrix *dense.Matrix,
	lexIndex *lexical.Index,
	chunks []domain.Chunk,
	embedder ports.Embedder,
	alpha float64,
	maxPerURL int,
) (*HybridRetriever, error) {
	if matrix.Rows() != len(chunks) {
		return nil, fmt.Errorf("embedding rows (%d) must match chunk count (%d)", matrix.Rows(), len(chunks))
	}
	if lexIndex.Len() != len(chunks) {
		return nil, fmt.Errorf("lexical index size (%d) must match chunk count (%d)", lexIndex.Len(), len(chunks))
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("fusion weight alpha %f out of [0,1]", alpha)
	}
	if maxPerURL <= 0 {
		maxPerURL = defaultMaxPerURL
	}
	return &HybridRetriever{
		matrix:    matrix,
		lexIndex:  lexIndex,
		chunks:    chunks,
		embedder:  embedder,
		alpha:     alpha,
		maxPerURL: maxPerURL,
	}, nil
}

// Retrieve returns at most k candidates, each URL appearing at most
// maxPerURL times. A short list is a valid result, never padded.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		k = defaultTopK
	}
	if len(r.chunks) == 0 {
		return nil, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	denseScores, err := r.matrix.Score(queryVector)
	if err != nil {
		return nil, fmt.Errorf("dense scoring: %w", err)
	}
	lexScores := r.lexIndex.Score(query)

	fused := fuseScores(denseScores, lexScores, r.alpha)

	poolSize := k * overfetchFactor
	if poolSize > len(fused) {
		poolSize = len(fused)
	}
	pool := selectTop(fused, poolSize)

	picked := make([]domain.Candidate, 0, k)
	perURL := make(map[string]int)
	for _, idx := range pool {
		chunk := r.chunks[idx]
		// A chunk without a URL has no dedupe identity and is excluded.
		if chunk.URL == "" {
			continue
		}
		if perURL[chunk.URL] >= r.maxPerURL {
			continue
		}
		picked = append(picked, domain.Candidate{Score: fused[idx], Chunk: chunk})
		perURL[chunk.URL]++
		if len(picked) >= k {
			break
		}
	}
	return picked, nil
}

// Search implements ports.SourceSearcher.
func (r *HybridRetriever) Search(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	return r.Retrieve(ctx, query, k)
}

// fuseScores min-max normalizes each signal independently and blends them:
// alpha weights the dense side. Both inputs must be aligned to chunk indices.
func fuseScores(denseScores, lexScores []float64, alpha float64) []float64 {
	denseNorm := minMaxNormalize(denseScores)
	lexNorm := minMaxNormalize(lexScores)

	fused := make([]float64, len(denseNorm))
	for i := range fused {
		fused[i] = alpha*denseNorm[i] + (1-alpha)*lexNorm[i]
	}
	return fused
}

// minMaxNormalize maps scores to [0,1]. A degenerate range maps every entry
// to 0: a flat signal carries no ranking information and must not be
// amplified.
func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	minS, maxS := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}
	if maxS-minS < degenerateRangeEps {
		return out
	}
	for i, s := range scores {
		out[i] = (s - minS) / (maxS - minS)
	}
	return out
}

// selectTop returns the indices of the n highest fused scores, descending,
// using a bounded min-heap rather than a full sort. Ties break toward the
// lower chunk index so the ordering is deterministic for identical input.
func selectTop(scores []float64, n int) []int {
	if n <= 0 {
		return nil
	}
	if n > len(scores) {
		n = len(scores)
	}

	h := &bottomHeap{scores: scores}
	for i := range scores {
		if h.Len() < n {
			heap.Push(h, i)
			continue
		}
		if betterScore(scores, i, h.indices[0]) {
			h.indices[0] = i
			heap.Fix(h, 0)
		}
	}

	out := h.indices
	sort.Slice(out, func(a, b int) bool {
		return betterScore(scores, out[a], out[b])
	})
	return out
}

func betterScore(scores []float64, i, j int) bool {
	if scores[i] != scores[j] {
		return scores[i] > scores[j]
	}
	return i < j
}

// bottomHeap is a min-heap over chunk indices keyed by fused score; the root
// is the weakest member of the current pool.
type bottomHeap struct {
	scores  []float64
	indices []int
}

func (h *bottomHeap) Len() int { return len(h.indices) }

func (h *bottomHeap) Less(a, b int) bool {
	return betterScore(h.scores, h.indices[b], h.indices[a])
}

func (h *bottomHeap) Swap(a, b int) {
	h.indices[a], h.indices[b] = h.indices[b], h.indices[a]
}

func (h *bottomHeap) Push(x any) {
	h.indices = append(h.indices, x.(int))
}

func (h *bottomHeap) Pop() any {
	last := len(h.indices) - 1
	x := h.indices[last]
	h.indices = h.indices[:last]
	return x
}
