package tasks

import (
	"context"
	"strings"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/batch"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/provider"
)

// IngredientConfig matches ingredient_task.py's BatchConfig(batch_size=8,
// max_concurrent_batches=3, task_name="ingredient").
var IngredientConfig = batch.Config{BatchSize: 8, MaxConcurrentBatches: 3, TaskName: "ingredient"}

// RunIngredient extracts likely main ingredients and cuisine category for
// every item.
func RunIngredient(ctx context.Context, sessionID string, items []domain.MenuItem, extractor provider.IngredientExtractor, d Deps) batch.Summary {
	exec := batch.New(IngredientConfig, d.Publisher)
	exec.OnItemSuccess = func(ctx context.Context, itemID string, data any) {
		r := data.(provider.IngredientResult)
		d.Publisher.PublishMenuUpdate(ctx, sessionID, itemID, map[string]any{
			"task_type":        "ingredient",
			"status":           "completed",
			"item_id":          itemID,
			"ingredient_info":  strings.Join(r.MainIngredients, ", "),
			"main_ingredients": r.MainIngredients,
			"dietary_info":     r.DietaryInfo,
			"cuisine_category": r.CuisineCategory,
		})
	}

	batchItems := toBatchItems(items)
	summary := exec.Process(ctx, sessionID, batchItems,
		func(ctx context.Context, item batch.Item[any]) (any, error) {
			mi := item.Payload.(domain.MenuItem)
			return callProvider(ctx, d, func(ctx context.Context) (provider.IngredientResult, error) {
				return extractor.ExtractIngredients(ctx, mi.Name, mi.Category)
			})
		},
		func(ctx context.Context, itemID string, result any) (bool, error) {
			r := result.(provider.IngredientResult)
			ingredientInfo := ingredientText(r)
			return persistItem(ctx, d, "ingredient", itemID, func(mi *domain.MenuItem) {
				mi.Ingredient = stringPtr(ingredientInfo)
			})
		},
	)

	d.Publisher.PublishBatchCompleted(ctx, sessionID, "ingredient", events.BatchCompletedData{
		CompletedItems: summary.CompletedItems,
		TotalItems:     summary.TotalItems,
		SuccessRate:    summary.SuccessRate,
		ProcessingSummary: map[string]any{
			"items_processed":  len(items),
			"analysis_language": "Japanese/English",
			"nutrition_info":   "ingredient_analysis_completed",
		},
	})
	return summary
}

// ingredientText mirrors ingredient_task.py's fallback chain for the
// persisted ingredient field: a non-empty main-ingredients list wins;
// otherwise fall back to a known cuisine category, then a cooking method
// list, then a final "unknown" marker.
func ingredientText(r provider.IngredientResult) string {
	if len(r.MainIngredients) > 0 {
		return strings.Join(r.MainIngredients, ", ")
	}
	if r.CuisineCategory != "" && r.CuisineCategory != "unknown" {
		return "料理タイプ: " + r.CuisineCategory
	}
	if len(r.CookingMethods) > 0 {
		return "調理法: " + strings.Join(r.CookingMethods, ", ")
	}
	return "材料情報不明"
}
