package builder

import (
	"errors"
	"fmt"

	"github.com/valpere/qgen/internal/textfile"
)

const (
	SourceFile    = "parallel_source.txt"
	TargetFile    = "parallel_tgt.txt"
	CandidateFile = "result.json"
)

var ErrMisaligned = errors.New("builder: source and target files are not line-aligned")

// Pair is one pseudo-parallel (source, target) correspondence.
type Pair struct {
	Source string
	Target string
}

// ReadPairs loads two line-aligned files. Line i of each file forms pair i.
func ReadPairs(sourcePath, targetPath string) ([]Pair, error) {
	src, err := textfile.ReadLines(sourcePath)
	if err != nil {
		return nil, err
	}
	tgt, err := textfile.ReadLines(targetPath)
	if err != nil {
		return nil, err
	}
	if len(src) != len(tgt) {
		return nil, fmt.Errorf("%w: %d source lines, %d target lines", ErrMisaligned, len(src), len(tgt))
	}
	pairs := make([]Pair, len(src))
	for i := range src {
		pairs[i] = Pair{Source: src[i], Target: tgt[i]}
	}
	return pairs, nil
}

// WritePairs stores pairs as two line-aligned files.
func WritePairs(sourcePath, targetPath string, pairs []Pair) error {
	src := make([]string, len(pairs))
	tgt := make([]string, len(pairs))
	for i, p := range pairs {
		src[i], tgt[i] = p.Source, p.Target
	}
	if err := textfile.WriteLines(sourcePath, src); err != nil {
		return err
	}
	return textfile.WriteLines(targetPath, tgt)
}
