package validator

import (
	"reflect"
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New("en", "uk", "de")
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func TestIsValid_EmptyTargetLang(t *testing.T) {
	v := newValidator(t)

	valid, err := v.IsValid("Some rewritten text", "")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true for empty targetLang")
	}
}

func TestIsValid_EmptyTranslation(t *testing.T) {
	v := newValidator(t)

	valid, err := v.IsValid("", "en")
	if err == nil {
		t.Error("expected error for empty rewrite")
	}
	if valid {
		t.Error("expected valid=false for empty rewrite")
	}
}

func TestIsValid_WhitespaceOnlyTranslation(t *testing.T) {
	v := newValidator(t)

	valid, err := v.IsValid("   ", "en")
	if err == nil {
		t.Error("expected error for whitespace-only rewrite")
	}
	if valid {
		t.Error("expected valid=false for whitespace-only rewrite")
	}
}

func TestIsValid_ShortText(t *testing.T) {
	v := newValidator(t)

	shortText := "Hi" // Less than minValidationLength (20 chars)
	valid, err := v.IsValid(shortText, "en")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true for short text (below threshold)")
	}
}

func TestIsValid_EnglishToEnglish(t *testing.T) {
	v := newValidator(t)

	text := "How long does it take to renew a passport online?"
	valid, err := v.IsValid(text, "en")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true when detecting English as English")
	}
}

func TestIsValid_MismatchedLanguage(t *testing.T) {
	v := newValidator(t)

	englishText := "How long does it take to renew a passport online?"
	valid, err := v.IsValid(englishText, "uk")
	if err == nil {
		t.Error("expected error for mismatched language")
	}
	if valid {
		t.Error("expected valid=false when detecting English but expecting Ukrainian")
	}
}

func TestIsValid_UkrainianText(t *testing.T) {
	v := newValidator(t)

	ukrainianText := "Це є тестовий текст українською мовою для перевірки роботи валідатора."
	valid, err := v.IsValid(ukrainianText, "uk")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true when detecting Ukrainian as Ukrainian")
	}
}

func TestIsValid_CaseInsensitiveTargetLang(t *testing.T) {
	v := newValidator(t)

	text := "How long does it take to renew a passport online?"
	valid, err := v.IsValid(text, "EN") // uppercase
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true for case-insensitive targetLang")
	}
}

func TestFilter_DropsOtherLanguages(t *testing.T) {
	v := newValidator(t)

	in := []string{
		"How long does it take to renew a passport online?",
		"Wie lange dauert es, einen Reisepass online zu verlängern?",
		"Renew passport?",
	}
	got := v.Filter(in, "en")
	want := []string{in[0], in[2]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Filter() = %q, want %q", got, want)
	}
}

func TestNew_UnknownLanguage(t *testing.T) {
	if _, err := New("en", "zz"); err == nil {
		t.Error("expected error for unknown language code")
	}
}
