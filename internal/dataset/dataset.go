// Package dataset prepares pseudo-parallel pairs for NMT training and turns
// flat N-best translation output back into candidate maps.
package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/qgen/internal/nlp"
	"github.com/valpere/qgen/internal/textfile"
)

var (
	ErrMisaligned  = errors.New("dataset: source and target files differ in length")
	ErrShortOutput = errors.New("dataset: translation output has fewer lines than expected")
	ErrBadRatio    = errors.New("dataset: invalid split ratio")
)

// SplitConfig names the input pair files, the six output files and the
// held-out ratios.
type SplitConfig struct {
	InputSrc, InputTgt string
	TrainSrc, TrainTgt string
	ValidSrc, ValidTgt string
	TestSrc, TestTgt   string

	ValidationRatio float64
	TestRatio       float64
}

// SplitCounts reports how many lines went to each partition.
type SplitCounts struct {
	Train, Valid, Test int
}

// Split tokenises both sides (tokens joined by single spaces) and partitions
// them without shuffling: the first floor(n*(valid+test)) lines are held
// out, the rest is training data. The held-out head is split again, its first
// floor(h*valid/(valid+test)) lines becoming test data and the rest
// validation data.
func Split(cfg SplitConfig) (SplitCounts, error) {
	v, t := cfg.ValidationRatio, cfg.TestRatio
	if v < 0 || t < 0 || v+t > 1 {
		return SplitCounts{}, fmt.Errorf("%w: validation %.3f, test %.3f", ErrBadRatio, v, t)
	}

	src, err := readTokenized(cfg.InputSrc)
	if err != nil {
		return SplitCounts{}, err
	}
	tgt, err := readTokenized(cfg.InputTgt)
	if err != nil {
		return SplitCounts{}, err
	}
	if len(src) != len(tgt) {
		return SplitCounts{}, fmt.Errorf("%w: %d vs %d", ErrMisaligned, len(src), len(tgt))
	}

	heldOut := int(float64(len(src)) * (v + t))
	test := 0
	if v+t > 0 {
		test = int(float64(heldOut) * v / (v + t))
	}

	writes := []struct {
		path  string
		lines []string
	}{
		{cfg.TrainSrc, src[heldOut:]},
		{cfg.TrainTgt, tgt[heldOut:]},
		{cfg.ValidSrc, src[test:heldOut]},
		{cfg.ValidTgt, tgt[test:heldOut]},
		{cfg.TestSrc, src[:test]},
		{cfg.TestTgt, tgt[:test]},
	}
	for _, w := range writes {
		if w.path == "" {
			continue
		}
		if err := textfile.WriteLines(w.path, w.lines); err != nil {
			return SplitCounts{}, err
		}
	}
	return SplitCounts{Train: len(src) - heldOut, Valid: heldOut - test, Test: test}, nil
}

func readTokenized(path string) ([]string, error) {
	lines, err := textfile.ReadLines(path)
	if err != nil {
		return nil, err
	}
	for i, line := range lines {
		lines[i] = strings.Join(nlp.Tokenize(line), " ")
	}
	return lines, nil
}

// Format groups every n consecutive translated lines under the source line
// they were produced from and writes the result as a candidate map. A source
// that occurs twice collects both groups.
func Format(srcPath, translatedPath, outputPath string, n int) (map[string][]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("dataset: n-best must be at least 1, got %d", n)
	}
	src, err := textfile.ReadLines(srcPath)
	if err != nil {
		return nil, err
	}
	translated, err := textfile.ReadLines(translatedPath)
	if err != nil {
		return nil, err
	}
	if len(translated) < len(src)*n {
		return nil, fmt.Errorf("%w: %d lines for %d sources x %d", ErrShortOutput, len(translated), len(src), n)
	}

	out := make(map[string][]string, len(src))
	for i, s := range src {
		out[s] = append(out[s], translated[i*n:(i+1)*n]...)
	}
	if err := textfile.WriteCandidates(outputPath, out); err != nil {
		return nil, err
	}
	return out, nil
}
