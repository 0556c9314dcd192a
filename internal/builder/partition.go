package builder

// Range is the half-open slice [Start, End) of an input list.
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

// Partition splits n items into at most workers contiguous ranges of
// ceil(n/workers) items each; the last range may be shorter. Every index in
// [0, n) is covered exactly once. workers below 1 is treated as 1.
func Partition(n, workers int) []Range {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	out := make([]Range, 0, workers)
	for start := 0; start < n; start += size {
		out = append(out, Range{Start: start, End: min(start+size, n)})
	}
	return out
}
