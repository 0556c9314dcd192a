package generator

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/qgen/internal/validator"
)

// Translator translates a batch of texts between two languages, keeping
// input order.
type Translator interface {
	Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error)
}

// maxTextsPerRequest stays under the Cloud Translation v2 limit of 128
// segments per call.
const maxTextsPerRequest = 100

// GoogleTranslator is a Translator backed by Google Cloud Translation.
type GoogleTranslator struct {
	client *translate.Client
}

// NewGoogleTranslator creates a client. An empty credentials path falls back
// to application default credentials.
func NewGoogleTranslator(ctx context.Context, credentials string, extra ...option.ClientOption) (*GoogleTranslator, error) {
	opts := []option.ClientOption{}
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	opts = append(opts, extra...)

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &GoogleTranslator{client: client}, nil
}

func (g *GoogleTranslator) Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error) {
	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += maxTextsPerRequest {
		end := min(start+maxTextsPerRequest, len(texts))
		translations, err := g.client.Translate(ctx, texts[start:end], target, &translate.Options{
			Source: source,
			Format: translate.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("translation failed: %w", err)
		}
		if len(translations) != end-start {
			return nil, fmt.Errorf("translation returned %d results for %d texts", len(translations), end-start)
		}
		for _, t := range translations {
			out = append(out, t.Text)
		}
	}
	return out, nil
}

func (g *GoogleTranslator) Close() error {
	return g.client.Close()
}

// DefaultPivots are the languages sentences are round-tripped through.
var DefaultPivots = []string{"fr", "de", "es"}

// BackTranslator rewrites sentences by translating them into each pivot
// language and back.
type BackTranslator struct {
	translator Translator
	source     language.Tag
	pivots     []language.Tag
	validator  *validator.Validator
}

// NewBackTranslator returns a generator for sentences in source. v may be
// nil; otherwise round trips that come back in another language are
// dropped.
func NewBackTranslator(tr Translator, source string, pivots []string, v *validator.Validator) (*BackTranslator, error) {
	src, err := language.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source language: %w", err)
	}
	if len(pivots) == 0 {
		pivots = DefaultPivots
	}
	tags := make([]language.Tag, 0, len(pivots))
	for _, p := range pivots {
		tag, err := language.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pivot language: %w", err)
		}
		tags = append(tags, tag)
	}
	return &BackTranslator{translator: tr, source: src, pivots: tags, validator: v}, nil
}

func (b *BackTranslator) Name() string { return "backtranslate" }

func (b *BackTranslator) BatchGenerate(ctx context.Context, sentences []string) (map[string][]string, error) {
	out := make(map[string][]string, len(sentences))
	seen := make(map[string]map[string]bool, len(sentences))
	for _, s := range sentences {
		seen[s] = make(map[string]bool)
	}

	for _, pivot := range b.pivots {
		forward, err := b.translator.Translate(ctx, sentences, b.source, pivot)
		if err != nil {
			return nil, fmt.Errorf("pivot %s: %w", pivot, err)
		}
		back, err := b.translator.Translate(ctx, forward, pivot, b.source)
		if err != nil {
			return nil, fmt.Errorf("pivot %s: %w", pivot, err)
		}
		if len(back) != len(sentences) {
			return nil, fmt.Errorf("pivot %s: %d round trips for %d sentences", pivot, len(back), len(sentences))
		}
		for i, s := range sentences {
			out[s] = appendUnique(out[s], seen[s], back[i], s)
		}
	}

	if b.validator != nil {
		lang, _ := b.source.Base()
		for s, rewrites := range out {
			out[s] = b.validator.Filter(rewrites, lang.String())
		}
	}
	return out, nil
}
