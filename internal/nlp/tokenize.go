// Package nlp holds the text utilities shared by the corpus builder:
// tokenisation for dataset preparation, content-word extraction and the
// word mover's distance used to score rewrites.
package nlp

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/segment"
	"golang.org/x/text/unicode/norm"
)

var (
	wordAnalyzer = mustWordAnalyzer()
	stopWords    = mustStopWords()
)

// mustWordAnalyzer chains unicode word segmentation, lower-casing and the
// English stop list. No stemming: the output is looked up in word vectors.
func mustWordAnalyzer() analysis.Analyzer {
	cache := registry.NewCache()
	tokenizer, err := cache.TokenizerNamed(unicode.Name)
	if err != nil {
		panic(err)
	}
	lower, err := cache.TokenFilterNamed(lowercase.Name)
	if err != nil {
		panic(err)
	}
	stop, err := cache.TokenFilterNamed(en.StopName)
	if err != nil {
		panic(err)
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer:    tokenizer,
		TokenFilters: []analysis.TokenFilter{lower, stop},
	}
}

func mustStopWords() analysis.TokenMap {
	words, err := registry.NewCache().TokenMapNamed(en.StopName)
	if err != nil {
		panic(err)
	}
	return words
}

// IsStopWord reports whether the lower-cased word is on the English stop list.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// Normalize applies NFKC and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// Tokenize splits s into words and punctuation marks, dropping whitespace.
// Case is preserved.
func Tokenize(s string) []string {
	seg := segment.NewWordSegmenterDirect([]byte(Normalize(s)))
	var out []string
	for seg.Segment() {
		tok := strings.TrimSpace(string(seg.Bytes()))
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Words returns the lower-cased content words of s, without stop words or
// punctuation, in order of appearance.
func Words(s string) []string {
	stream := wordAnalyzer.Analyze([]byte(Normalize(s)))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		out = append(out, string(tok.Term))
	}
	return out
}
