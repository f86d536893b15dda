package provider

import (
	"context"
	"testing"

	"github.com/menusense/pipeline/engine/domain"
)

func TestStubOCRReturnsFixedElements(t *testing.T) {
	s := &StubOCR{Elements: []domain.OCRElement{{Text: "Ramen", XCenter: 0.1, YCenter: 0.2}}}
	got, err := s.Extract(context.Background(), []byte("ignored"), "fine")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "Ramen" {
		t.Fatalf("got %+v", got)
	}
}

func TestStubTranslatorAppendsSuffix(t *testing.T) {
	name, category, err := StubTranslator{}.Translate(context.Background(), "ラーメン", "麺類", "en")
	if err != nil {
		t.Fatal(err)
	}
	if name != "ラーメン (en)" || category != "麺類 (en)" {
		t.Fatalf("got %q %q", name, category)
	}
}

func TestStubAllergenExtractorAlwaysFree(t *testing.T) {
	r, err := StubAllergenExtractor{}.ExtractAllergens(context.Background(), "x", "y")
	if err != nil {
		t.Fatal(err)
	}
	if !r.AllergenFree {
		t.Fatal("expected allergen free")
	}
}

func TestStubImageSearcherReturnsNone(t *testing.T) {
	results, err := StubImageSearcher{}.SearchImages(context.Background(), "x", "y", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}
