package tasks

import (
	"testing"

	"github.com/menusense/pipeline/engine/pipeline/provider"
)

func TestIngredientTextPrefersMainIngredients(t *testing.T) {
	got := ingredientText(provider.IngredientResult{MainIngredients: []string{"rice", "egg"}})
	if got != "rice, egg" {
		t.Fatalf("expected joined ingredients, got %q", got)
	}
}

func TestIngredientTextFallsBackToCuisineCategory(t *testing.T) {
	got := ingredientText(provider.IngredientResult{CuisineCategory: "japanese"})
	if got != "料理タイプ: japanese" {
		t.Fatalf("expected cuisine category fallback, got %q", got)
	}
}

func TestIngredientTextIgnoresUnknownCuisineCategory(t *testing.T) {
	got := ingredientText(provider.IngredientResult{CuisineCategory: "unknown", CookingMethods: []string{"grilled"}})
	if got != "調理法: grilled" {
		t.Fatalf("expected cooking method fallback, got %q", got)
	}
}

func TestIngredientTextFinalFallback(t *testing.T) {
	got := ingredientText(provider.IngredientResult{CuisineCategory: "unknown"})
	if got != "材料情報不明" {
		t.Fatalf("expected final fallback, got %q", got)
	}
}
