// Package snapshot reads and writes the offline embedding index: a dense
// float32 matrix file plus a line-oriented JSON metadata file with one chunk
// record per matrix row.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/index/dense"
)

// Matrix file layout: magic, uint32 rows, uint32 dims, then row-major
// little-endian float32 data.
var matrixMagic = [4]byte{'F', 'R', 'G', '1'}

// Load reads both snapshot files and validates positional alignment.
// A row-count mismatch is a hard error: callers treat it as fatal at startup.
func Load(embPath, metaPath string) (*dense.Matrix, []domain.Chunk, error) {
	matrix, err := ReadMatrix(embPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read embedding matrix: %w", err)
	}
	chunks, err := ReadMeta(metaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read chunk metadata: %w", err)
	}
	if len(chunks) != matrix.Rows() {
		return nil, nil, fmt.Errorf("metadata rows (%d) must match embedding rows (%d)", len(chunks), matrix.Rows())
	}
	return matrix, chunks, nil
}

func ReadMatrix(path string) (*dense.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read matrix header: %w", err)
	}
	if magic != matrixMagic {
		return nil, fmt.Errorf("unrecognized matrix file format in %s", path)
	}

	var rows, dims uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("read matrix rows: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("read matrix dims: %w", err)
	}

	data := make([]float32, int(rows)*int(dims))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("read matrix data: %w", err)
	}
	return dense.NewMatrix(int(rows), int(dims), data)
}

// WriteMatrix writes vectors atomically: to a temp file in the target
// directory, then rename, so a crashed rebuild never leaves a torn snapshot.
func WriteMatrix(path string, vectors [][]float32) error {
	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dims)
		}
	}

	return writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(matrixMagic[:]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(vectors))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(dims)); err != nil {
			return err
		}
		for _, v := range vectors {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func ReadMeta(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var chunk domain.Chunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, fmt.Errorf("parse metadata line %d: %w", line, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan metadata file: %w", err)
	}
	return chunks, nil
}

func WriteMeta(path string, chunks []domain.Chunk) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, chunk := range chunks {
			if err := enc.Encode(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	if err := write(w); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("swap snapshot: %w", err)
	}
	return nil
}
