package generator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/valpere/qgen/internal/nlp"
)

// Thesaurus maps a lower-case word to its synonyms.
type Thesaurus map[string][]string

// LoadThesaurus reads a tab-separated synonym file: the headword followed by
// its synonyms, one headword per line. Lines starting with '#' are skipped.
func LoadThesaurus(path string) (Thesaurus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open thesaurus: %w", err)
	}
	defer f.Close()
	return ReadThesaurus(f)
}

func ReadThesaurus(r io.Reader) (Thesaurus, error) {
	th := make(Thesaurus)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		head := onlyChars(fields[0])
		if head == "" {
			continue
		}
		for _, syn := range fields[1:] {
			syn = onlyChars(strings.ReplaceAll(syn, "_", " "))
			if syn != "" && syn != head {
				th[head] = append(th[head], syn)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thesaurus: %w", err)
	}
	return th, nil
}

func (t Thesaurus) Synonyms(word string) []string {
	return t[strings.ToLower(word)]
}

// EDAOptions tune easy data augmentation.
type EDAOptions struct {
	// AlphaSR, AlphaRI and AlphaRS are the shares of words replaced by
	// synonyms, inserted and swapped.
	AlphaSR float64
	AlphaRI float64
	AlphaRS float64
	// PRD is the probability of deleting each word.
	PRD float64
	// NumAug is the number of augmentations per sentence. Below 1 it is the
	// probability of keeping each augmentation.
	NumAug float64
	Seed   uint64
}

func DefaultEDAOptions() EDAOptions {
	return EDAOptions{AlphaSR: 0.1, AlphaRI: 0.1, AlphaRS: 0.1, PRD: 0.1, NumAug: 9, Seed: 42}
}

// EDA rewrites a sentence by synonym replacement, random insertion, random
// swap and random deletion. Output is lower-case ASCII letters only, and
// the cleaned original is always the last rewrite.
type EDA struct {
	opts      EDAOptions
	thesaurus Thesaurus

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEDA(thesaurus Thesaurus, opts EDAOptions) *EDA {
	return &EDA{
		opts:      opts,
		thesaurus: thesaurus,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5deece66d)),
	}
}

func (e *EDA) Name() string { return "eda" }

func (e *EDA) BatchGenerate(ctx context.Context, sentences []string) (map[string][]string, error) {
	out := make(map[string][]string, len(sentences))
	for _, s := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[s] = e.Generate(s)
	}
	return out, nil
}

// Generate returns the augmentations of one sentence.
func (e *EDA) Generate(sentence string) []string {
	clean := onlyChars(sentence)
	words := strings.Fields(clean)
	if len(words) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	perTechnique := int(e.opts.NumAug/4) + 1
	nSR := max(1, int(e.opts.AlphaSR*float64(len(words))))
	nRI := max(1, int(e.opts.AlphaRI*float64(len(words))))
	nRS := max(1, int(e.opts.AlphaRS*float64(len(words))))

	var augmented []string
	for range perTechnique {
		augmented = append(augmented, strings.Join(e.synonymReplacement(words, nSR), " "))
	}
	for range perTechnique {
		augmented = append(augmented, strings.Join(e.randomInsertion(words, nRI), " "))
	}
	for range perTechnique {
		augmented = append(augmented, strings.Join(e.randomSwap(words, nRS), " "))
	}
	for range perTechnique {
		augmented = append(augmented, strings.Join(e.randomDeletion(words, e.opts.PRD), " "))
	}

	for i := range augmented {
		augmented[i] = onlyChars(augmented[i])
	}
	e.rng.Shuffle(len(augmented), func(i, j int) { augmented[i], augmented[j] = augmented[j], augmented[i] })

	if e.opts.NumAug >= 1 {
		augmented = augmented[:min(len(augmented), int(e.opts.NumAug))]
	} else {
		keep := e.opts.NumAug / float64(len(augmented))
		kept := augmented[:0]
		for _, a := range augmented {
			if e.rng.Float64() < keep {
				kept = append(kept, a)
			}
		}
		augmented = kept
	}
	return append(augmented, clean)
}

func (e *EDA) synonymReplacement(words []string, n int) []string {
	out := append([]string(nil), words...)

	var candidates []string
	seen := make(map[string]bool)
	for _, w := range words {
		if !seen[w] && !nlp.IsStopWord(w) {
			seen[w] = true
			candidates = append(candidates, w)
		}
	}
	e.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	replaced := 0
	for _, w := range candidates {
		syns := e.thesaurus.Synonyms(w)
		if len(syns) > 0 {
			syn := syns[e.rng.IntN(len(syns))]
			for i := range out {
				if out[i] == w {
					out[i] = syn
				}
			}
			replaced++
		}
		if replaced >= n {
			break
		}
	}
	// multi-word synonyms become separate words
	return strings.Fields(strings.Join(out, " "))
}

func (e *EDA) randomDeletion(words []string, p float64) []string {
	if len(words) == 1 {
		return words
	}
	var out []string
	for _, w := range words {
		if e.rng.Float64() > p {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return []string{words[e.rng.IntN(len(words))]}
	}
	return out
}

func (e *EDA) randomSwap(words []string, n int) []string {
	out := append([]string(nil), words...)
	for range n {
		e.swapWord(out)
	}
	return out
}

func (e *EDA) swapWord(words []string) {
	i := e.rng.IntN(len(words))
	j := i
	for tries := 0; j == i; tries++ {
		if tries > 3 {
			return
		}
		j = e.rng.IntN(len(words))
	}
	words[i], words[j] = words[j], words[i]
}

func (e *EDA) randomInsertion(words []string, n int) []string {
	out := append([]string(nil), words...)
	for range n {
		out = e.addWord(out)
	}
	return out
}

// addWord inserts the first synonym of a random word at a random position.
// It gives up after ten words without synonyms.
func (e *EDA) addWord(words []string) []string {
	var syns []string
	for tries := 0; len(syns) == 0; tries++ {
		if tries >= 10 {
			return words
		}
		syns = e.thesaurus.Synonyms(words[e.rng.IntN(len(words))])
	}
	at := e.rng.IntN(len(words))
	words = append(words, "")
	copy(words[at+1:], words[at:])
	words[at] = syns[0]
	return words
}

// onlyChars lower-cases s, keeps ASCII letters and turns everything else into
// single spaces.
func onlyChars(s string) string {
	s = strings.NewReplacer("’", "", "'", "", "-", " ").Replace(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
