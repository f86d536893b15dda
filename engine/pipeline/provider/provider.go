// Package provider defines the pluggable enrichment-capability interfaces
// the pipeline calls into: OCR, structural categorization, translation,
// description, allergen extraction, ingredient extraction, and image
// search. Concrete implementations (gRPC-backed or in-process stubs) are
// injected by the caller; the pipeline never depends on a provider's
// transport.
package provider

import (
	"context"

	"github.com/menusense/pipeline/engine/domain"
)

// OCR extracts positioned text fragments from a menu photograph.
type OCR interface {
	Extract(ctx context.Context, imageBytes []byte, granularity string) ([]domain.OCRElement, error)
}

// Categorizer groups formatted OCR text into a structured menu.
type Categorizer interface {
	Categorize(ctx context.Context, formattedText, granularity string) (domain.CategorizedMenu, error)
}

// Translator translates one menu item's name/category to a target language.
type Translator interface {
	Translate(ctx context.Context, name, category, targetLang string) (translatedName, translatedCategory string, err error)
}

// Describer produces a natural-language description for one menu item.
type Describer interface {
	Describe(ctx context.Context, name, category string) (description string, err error)
}

// AllergenResult is what the allergen-extraction capability returns.
type AllergenResult struct {
	Allergens     []string
	AllergenFree  bool
	Notes         string
}

// AllergenExtractor identifies likely allergens in a menu item.
type AllergenExtractor interface {
	ExtractAllergens(ctx context.Context, name, category string) (AllergenResult, error)
}

// IngredientResult is what the ingredient-extraction capability returns.
type IngredientResult struct {
	MainIngredients []string
	CookingMethods  []string
	CuisineCategory string
	DietaryInfo     map[string]any
}

// IngredientExtractor breaks down a menu item's likely ingredients.
type IngredientExtractor interface {
	ExtractIngredients(ctx context.Context, name, category string) (IngredientResult, error)
}

// ImageResult is one representative image found for a menu item.
type ImageResult struct {
	Link      string
	Title     string
	Thumbnail string
}

// ImageSearcher finds representative imagery for a menu item.
type ImageSearcher interface {
	SearchImages(ctx context.Context, name, category string, count int) ([]ImageResult, error)
}
