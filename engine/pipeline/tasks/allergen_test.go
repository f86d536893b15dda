package tasks

import (
	"testing"

	"github.com/menusense/pipeline/engine/pipeline/provider"
)

func TestAllergenTextPrefersAllergenList(t *testing.T) {
	got := allergenText(provider.AllergenResult{Allergens: []string{"peanuts", "soy"}, AllergenFree: false})
	if got != "peanuts, soy" {
		t.Fatalf("expected joined allergens, got %q", got)
	}
}

func TestAllergenTextAllergenFreeReportsNone(t *testing.T) {
	got := allergenText(provider.AllergenResult{AllergenFree: true})
	if got != "None" {
		t.Fatalf("expected None, got %q", got)
	}
}

func TestAllergenTextFallsBackToNotes(t *testing.T) {
	got := allergenText(provider.AllergenResult{Notes: "couldn't analyze"})
	if got != "couldn't analyze" {
		t.Fatalf("expected notes fallback, got %q", got)
	}
}

func TestAllergenTextFinalFallback(t *testing.T) {
	got := allergenText(provider.AllergenResult{})
	if got != "Unable to determine" {
		t.Fatalf("expected final fallback, got %q", got)
	}
}
