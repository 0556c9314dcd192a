package nlp

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// simplexTolerance is passed to the LP solver for degeneracy checks.
const simplexTolerance = 1e-10

// WordLookup resolves a word to its embedding.
type WordLookup interface {
	Lookup(word string) ([]float32, bool)
}

// WMD is the word mover's distance between two sentences over normalised
// bag-of-words weights and Euclidean word costs. Lower means more similar.
// Sentences without any known content word are infinitely far from
// everything.
type WMD struct {
	Vectors WordLookup
}

type bag struct {
	words   []string
	weights []float64
	vectors [][]float64
}

func (w WMD) bag(s string) bag {
	counts := make(map[string]int)
	vectors := make(map[string][]float64)
	total := 0
	for _, word := range Words(s) {
		if _, ok := vectors[word]; !ok {
			v, found := w.Vectors.Lookup(word)
			if !found {
				continue
			}
			vectors[word] = toFloat64(v)
		}
		counts[word]++
		total++
	}

	b := bag{words: make([]string, 0, len(counts))}
	for word := range counts {
		b.words = append(b.words, word)
	}
	sort.Strings(b.words)
	for _, word := range b.words {
		b.weights = append(b.weights, float64(counts[word])/float64(total))
		b.vectors = append(b.vectors, vectors[word])
	}
	return b
}

// Distance computes the exact WMD, falling back to the relaxed lower bound
// when the transport problem cannot be solved.
func (w WMD) Distance(ctx context.Context, a, b string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x, y := w.bag(a), w.bag(b)
	if len(x.words) == 0 || len(y.words) == 0 {
		return math.Inf(1), nil
	}
	if sameBag(x, y) {
		return 0, nil
	}

	cost := costMatrix(x, y)
	switch {
	case len(x.words) == 1:
		return floats.Dot(cost[0], y.weights), nil
	case len(y.words) == 1:
		var d float64
		for i := range x.words {
			d += x.weights[i] * cost[i][0]
		}
		return d, nil
	}

	d, err := transport(x.weights, y.weights, cost)
	if err != nil {
		return relaxed(x.weights, y.weights, cost), nil
	}
	return d, nil
}

func sameBag(x, y bag) bool {
	if len(x.words) != len(y.words) {
		return false
	}
	for i := range x.words {
		if x.words[i] != y.words[i] || math.Abs(x.weights[i]-y.weights[i]) > 1e-12 {
			return false
		}
	}
	return true
}

func costMatrix(x, y bag) [][]float64 {
	cost := make([][]float64, len(x.words))
	for i := range x.words {
		cost[i] = make([]float64, len(y.words))
		for j := range y.words {
			cost[i][j] = floats.Distance(x.vectors[i], y.vectors[j], 2)
		}
	}
	return cost
}

// transport solves the earth mover's problem as a linear program in
// standard form over the n*m flow variables. The last column constraint is
// implied by the others and is dropped to keep A full row rank.
func transport(p, q []float64, cost [][]float64) (float64, error) {
	n, m := len(p), len(q)
	vars := n * m
	rows := n + m - 1

	c := make([]float64, vars)
	for i := 0; i < n; i++ {
		copy(c[i*m:(i+1)*m], cost[i])
	}

	A := mat.NewDense(rows, vars, nil)
	b := make([]float64, rows)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			A.Set(i, i*m+j, 1)
		}
		b[i] = p[i]
	}
	for j := 0; j < m-1; j++ {
		for i := 0; i < n; i++ {
			A.Set(n+j, i*m+j, 1)
		}
		b[n+j] = q[j]
	}

	opt, _, err := lp.Simplex(c, A, b, simplexTolerance, nil)
	if err != nil {
		return 0, err
	}
	return opt, nil
}

// relaxed is the RWMD lower bound: the larger of the two one-sided
// relaxations where each word ships all its mass to its nearest counterpart.
func relaxed(p, q []float64, cost [][]float64) float64 {
	var left, right float64
	for i := range p {
		left += p[i] * floats.Min(cost[i])
	}
	for j := range q {
		best := math.Inf(1)
		for i := range p {
			best = math.Min(best, cost[i][j])
		}
		right += q[j] * best
	}
	return math.Max(left, right)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
