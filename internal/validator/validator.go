// Package validator checks that generated rewrites stay in the language of
// the sentence they were generated from.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/qgen/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

type Validator struct {
	det *detector.Detector
}

// New creates a Validator over the given ISO 639-1 codes; see detector.New.
func New(codes ...string) (*Validator, error) {
	det, err := detector.New(codes...)
	if err != nil {
		return nil, err
	}
	return &Validator{det: det}, nil
}

// IsValid returns true when text appears to be written in lang.
//
// Short texts (fewer than minValidationLength runes) and texts whose language
// cannot be determined pass without error. When the detected language differs
// from lang the returned error names both codes.
func (v *Validator) IsValid(text, lang string) (bool, error) {
	if lang == "" {
		return true, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false, fmt.Errorf("rewrite is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	if !strings.EqualFold(detected, lang) {
		return false, fmt.Errorf("expected %s but detected %s", lang, detected)
	}

	return true, nil
}

// Filter returns the texts that pass IsValid, in order.
func (v *Validator) Filter(texts []string, lang string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if ok, _ := v.IsValid(t, lang); ok {
			out = append(out, t)
		}
	}
	return out
}
