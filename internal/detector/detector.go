// Package detector identifies the language of generated rewrites.
package detector

import (
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to the given ISO 639-1 codes. Fewer than
// two codes means every supported language is considered. Building from all
// languages is slow and memory hungry; reuse the instance.
func New(codes ...string) (*Detector, error) {
	builder := lingua.NewLanguageDetectorBuilder()
	if len(codes) < 2 {
		return &Detector{detector: builder.FromAllLanguages().Build()}, nil
	}

	langs := make([]lingua.Language, 0, len(codes))
	for _, code := range codes {
		lang, err := Language(code)
		if err != nil {
			return nil, err
		}
		langs = append(langs, lang)
	}
	return &Detector{detector: builder.FromLanguages(langs...).Build()}, nil
}

// Language maps an ISO 639-1 code such as "en" to a lingua language.
func Language(code string) (lingua.Language, error) {
	for _, lang := range lingua.AllLanguages() {
		if strings.EqualFold(lang.IsoCode639_1().String(), code) {
			return lang, nil
		}
	}
	return lingua.Unknown, fmt.Errorf("unsupported language code %q", code)
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the upper-case ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// Confidence returns how likely text is written in the language with the
// given code, between 0 and 1.
func (d *Detector) Confidence(text, code string) (float64, error) {
	lang, err := Language(code)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	return d.detector.ComputeLanguageConfidence(text, lang), nil
}
