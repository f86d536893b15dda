package provider

import (
	"context"
	"fmt"

	"github.com/menusense/pipeline/engine/domain"
)

// StubOCR returns a fixed sequence of OCR elements, ignoring the image
// bytes. Useful for tests and for running the pipeline without a live ML
// worker.
type StubOCR struct {
	Elements []domain.OCRElement
}

func (s *StubOCR) Extract(_ context.Context, _ []byte, _ string) ([]domain.OCRElement, error) {
	return s.Elements, nil
}

// StubCategorizer returns a fixed categorized menu, ignoring its input.
type StubCategorizer struct {
	Menu domain.CategorizedMenu
}

func (s *StubCategorizer) Categorize(_ context.Context, _, _ string) (domain.CategorizedMenu, error) {
	return s.Menu, nil
}

// StubTranslator echoes the input with an "(en)" suffix.
type StubTranslator struct{}

func (StubTranslator) Translate(_ context.Context, name, category, _ string) (string, string, error) {
	return name + " (en)", category + " (en)", nil
}

// StubDescriber generates a canned description.
type StubDescriber struct{}

func (StubDescriber) Describe(_ context.Context, name, category string) (string, error) {
	return fmt.Sprintf("%s is a %s dish.", name, category), nil
}

// StubAllergenExtractor reports allergen-free for everything.
type StubAllergenExtractor struct{}

func (StubAllergenExtractor) ExtractAllergens(_ context.Context, _, _ string) (AllergenResult, error) {
	return AllergenResult{AllergenFree: true}, nil
}

// StubIngredientExtractor reports an unknown cuisine with no ingredients.
type StubIngredientExtractor struct{}

func (StubIngredientExtractor) ExtractIngredients(_ context.Context, _, _ string) (IngredientResult, error) {
	return IngredientResult{CuisineCategory: "unknown"}, nil
}

// StubImageSearcher returns no images.
type StubImageSearcher struct{}

func (StubImageSearcher) SearchImages(_ context.Context, _, _ string, _ int) ([]ImageResult, error) {
	return nil, nil
}
