package tasks

import (
	"context"
	"strings"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/batch"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/provider"
)

// AllergenConfig matches allergen_task.py's BatchConfig(batch_size=8,
// max_concurrent_batches=3, task_name="allergen") — the engine default.
var AllergenConfig = batch.Config{BatchSize: 8, MaxConcurrentBatches: 3, TaskName: "allergen"}

// RunAllergen identifies likely allergens for every item.
func RunAllergen(ctx context.Context, sessionID string, items []domain.MenuItem, extractor provider.AllergenExtractor, d Deps) batch.Summary {
	exec := batch.New(AllergenConfig, d.Publisher)
	exec.OnItemSuccess = func(ctx context.Context, itemID string, data any) {
		r := data.(provider.AllergenResult)
		allergenInfo := strings.Join(r.Allergens, ", ")
		if allergenInfo == "" {
			allergenInfo = r.Notes
			if allergenInfo == "" {
				allergenInfo = "アレルギー情報なし"
			}
		}
		safetyLevel := "check_required"
		if r.AllergenFree {
			safetyLevel = "safe"
		}
		d.Publisher.PublishMenuUpdate(ctx, sessionID, itemID, map[string]any{
			"task_type":       "allergen",
			"status":          "completed",
			"item_id":         itemID,
			"allergen_info":   allergenInfo,
			"allergen_details": r.Allergens,
			"allergen_free":   r.AllergenFree,
			"safety_level":    safetyLevel,
		})
	}

	batchItems := toBatchItems(items)
	summary := exec.Process(ctx, sessionID, batchItems,
		func(ctx context.Context, item batch.Item[any]) (any, error) {
			mi := item.Payload.(domain.MenuItem)
			return callProvider(ctx, d, func(ctx context.Context) (provider.AllergenResult, error) {
				return extractor.ExtractAllergens(ctx, mi.Name, mi.Category)
			})
		},
		func(ctx context.Context, itemID string, result any) (bool, error) {
			r := result.(provider.AllergenResult)
			allergenInfo := allergenText(r)
			return persistItem(ctx, d, "allergen", itemID, func(mi *domain.MenuItem) {
				mi.Allergy = stringPtr(allergenInfo)
			})
		},
	)

	d.Publisher.PublishBatchCompleted(ctx, sessionID, "allergen", events.BatchCompletedData{
		CompletedItems: summary.CompletedItems,
		TotalItems:     summary.TotalItems,
		SuccessRate:    summary.SuccessRate,
		ProcessingSummary: map[string]any{
			"items_processed":  len(items),
			"analysis_language": "Japanese/English",
			"safety_info":      "allergen_warnings_identified",
		},
	})
	return summary
}

// allergenText mirrors allergen_task.py's three-way branch for the
// persisted allergy field: a non-empty allergen list wins, an explicit
// allergen-free result reports "None", and anything else falls back to
// the provider's notes or, failing that, "Unable to determine".
func allergenText(r provider.AllergenResult) string {
	if len(r.Allergens) > 0 {
		return strings.Join(r.Allergens, ", ")
	}
	if r.AllergenFree {
		return "None"
	}
	if r.Notes != "" {
		return r.Notes
	}
	return "Unable to determine"
}
