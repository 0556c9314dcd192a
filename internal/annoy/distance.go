package annoy

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Similarity converts an angular distance into cosine similarity.
// The index reports distances only; callers that need a score apply this.
func Similarity(distance float32) float64 {
	d := float64(distance)
	return 0.5 * (2 - d*d)
}

// AngularDistance is sqrt(2 - 2*cos(a, b)), the Euclidean distance between
// the unit-scaled vectors. Zero vectors are treated as orthogonal to
// everything.
func AngularDistance(a, b []float32) float32 {
	return angularFromCosine(cosine(a, b))
}

func angularFromCosine(cos float64) float32 {
	d2 := 2 - 2*cos
	if d2 < 0 {
		d2 = 0
	}
	return float32(math.Sqrt(d2))
}

func dot(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

func magnitude(v []float32) float64 {
	return math.Sqrt(float64(dot(v, v)))
}

func cosine(a, b []float32) float64 {
	ma, mb := magnitude(a), magnitude(b)
	if ma == 0 || mb == 0 {
		return 0
	}
	c := float64(dot(a, b)) / (ma * mb)
	switch {
	case c > 1:
		return 1
	case c < -1:
		return -1
	}
	return c
}

// normalized returns a unit-length copy of v, or a plain copy when v is zero.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	mag := magnitude(v)
	if mag == 0 {
		return out
	}
	inv := float32(1 / mag)
	for i := range out {
		out[i] *= inv
	}
	return out
}
