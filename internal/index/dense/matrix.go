// Package dense scores queries against the pre-computed embedding matrix.
// Rows are L2-normalized, so the dot product is cosine similarity.
package dense

import "fmt"

// Matrix is an N x D array of float32 embeddings, one row per chunk,
// positionally aligned with the snapshot metadata. Read-only after load and
// safe to share across concurrent queries.
type Matrix struct {
	rows int
	dims int
	data []float32
}

func NewMatrix(rows, dims int, data []float32) (*Matrix, error) {
	if rows < 0 || dims <= 0 {
		return nil, fmt.Errorf("invalid matrix shape %dx%d", rows, dims)
	}
	if len(data) != rows*dims {
		return nil, fmt.Errorf("matrix data length %d does not match shape %dx%d", len(data), rows, dims)
	}
	return &Matrix{rows: rows, dims: dims, data: data}, nil
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Dims() int { return m.dims }

// Row returns the i-th embedding vector. The returned slice aliases the
// matrix storage and must not be mutated.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dims : (i+1)*m.dims]
}

// Score computes the dot product of query against every row, O(N*D).
// Scores are aligned to chunk indices.
func (m *Matrix) Score(query []float32) ([]float64, error) {
	if len(query) != m.dims {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), m.dims)
	}
	scores := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		row := m.data[i*m.dims : (i+1)*m.dims]
		var dot float32
		for j, q := range query {
			dot += row[j] * q
		}
		scores[i] = float64(dot)
	}
	return scores, nil
}
