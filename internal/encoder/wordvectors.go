package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/viterin/vek/vek32"

	"github.com/valpere/qgen/internal/nlp"
)

// WordVectors averages pretrained word embeddings into a sentence vector.
// It reads the text format shared by fastText (.vec, with a "count dim"
// header line) and GloVe (no header).
type WordVectors struct {
	name      string
	dim       int
	vectors   map[string][]float32
	normalize bool
}

// WordVectorsOptions control how a word vector file is read.
type WordVectorsOptions struct {
	Name string
	// NormalizeWords scales each word vector to unit length before
	// averaging, as fastText sentence vectors do.
	NormalizeWords bool
	// MaxWords stops reading after this many entries. Zero reads all.
	MaxWords int
}

func LoadWordVectors(path string, opts WordVectorsOptions) (*WordVectors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word vectors: %w", err)
	}
	defer f.Close()
	wv, err := ReadWordVectors(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wv, nil
}

func ReadWordVectors(r io.Reader, opts WordVectorsOptions) (*WordVectors, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	wv := &WordVectors{name: opts.Name, vectors: make(map[string][]float32), normalize: opts.NormalizeWords}
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && isHeader(fields) {
			dim, _ := strconv.Atoi(fields[1])
			wv.dim = dim
			continue
		}
		if wv.dim == 0 {
			wv.dim = len(fields) - 1
		}
		if len(fields)-1 != wv.dim {
			return nil, fmt.Errorf("line %d: %d components, want %d", line, len(fields)-1, wv.dim)
		}
		vec := make([]float32, wv.dim)
		for i, s := range fields[1:] {
			x, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vec[i] = float32(x)
		}
		if _, dup := wv.vectors[fields[0]]; !dup {
			wv.vectors[fields[0]] = vec
		}
		if opts.MaxWords > 0 && len(wv.vectors) >= opts.MaxWords {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word vectors: %w", err)
	}
	if len(wv.vectors) == 0 || wv.dim == 0 {
		return nil, ErrEmptyModel
	}
	return wv, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	_, err1 := strconv.Atoi(fields[0])
	_, err2 := strconv.Atoi(fields[1])
	return err1 == nil && err2 == nil
}

func (w *WordVectors) Name() string   { return w.name }
func (w *WordVectors) Dimension() int { return w.dim }
func (w *WordVectors) Len() int       { return len(w.vectors) }

// Lookup returns the vector for word, trying the lower-cased form when the
// exact one is unknown. The returned slice must not be modified.
func (w *WordVectors) Lookup(word string) ([]float32, bool) {
	if v, ok := w.vectors[word]; ok {
		return v, true
	}
	v, ok := w.vectors[strings.ToLower(word)]
	return v, ok
}

// Vector returns the mean of the known token vectors of sentence, or the zero
// vector when no token is known.
func (w *WordVectors) Vector(_ context.Context, sentence string) ([]float32, error) {
	sum := make([]float32, w.dim)
	n := 0
	for _, tok := range nlp.Tokenize(sentence) {
		v, ok := w.Lookup(tok)
		if !ok {
			continue
		}
		if w.normalize {
			norm := vek32.Norm(v)
			if norm == 0 {
				continue
			}
			vek32.Add_Inplace(sum, vek32.DivNumber(v, norm))
		} else {
			vek32.Add_Inplace(sum, v)
		}
		n++
	}
	if n > 0 {
		vek32.DivNumber_Inplace(sum, float32(n))
	}
	return sum, nil
}

func (w *WordVectors) Vectors(ctx context.Context, sentences []string) ([][]float32, error) {
	return vectorsOneByOne(ctx, w, sentences)
}
