package tasks

import (
	"context"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/batch"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/provider"
)

// TranslationConfig matches translate_task.py's BatchConfig(batch_size=10,
// max_concurrent_batches=2, task_name="translation").
var TranslationConfig = batch.Config{BatchSize: 10, MaxConcurrentBatches: 2, TaskName: "translation"}

type translationResult struct {
	Name     string
	Category string
}

// RunTranslation translates every item's name and category to English and
// persists the result, publishing a menu_update per item and a
// translation_batch_completed summary at the end.
func RunTranslation(ctx context.Context, sessionID string, items []domain.MenuItem, translator provider.Translator, d Deps) batch.Summary {
	exec := batch.New(TranslationConfig, d.Publisher)
	exec.OnItemSuccess = func(ctx context.Context, itemID string, data any) {
		r := data.(translationResult)
		d.Publisher.PublishMenuUpdate(ctx, sessionID, itemID, map[string]any{
			"task_type":             "translation",
			"status":                "completed",
			"item_id":               itemID,
			"translation":           r.Name,
			"category_translation":  r.Category,
			"translation_language":  "en",
		})
	}

	batchItems := toBatchItems(items)
	summary := exec.Process(ctx, sessionID, batchItems,
		func(ctx context.Context, item batch.Item[any]) (any, error) {
			mi := item.Payload.(domain.MenuItem)
			return callProvider(ctx, d, func(ctx context.Context) (translationResult, error) {
				n, c, err := translator.Translate(ctx, mi.Name, mi.Category, "en")
				return translationResult{Name: n, Category: c}, err
			})
		},
		func(ctx context.Context, itemID string, result any) (bool, error) {
			r := result.(translationResult)
			return persistItem(ctx, d, "translation", itemID, func(mi *domain.MenuItem) {
				mi.Translation = stringPtr(r.Name)
				mi.CategoryTranslation = stringPtr(r.Category)
			})
		},
	)

	d.Publisher.PublishBatchCompleted(ctx, sessionID, "translation", events.BatchCompletedData{
		CompletedItems: summary.CompletedItems,
		TotalItems:     summary.TotalItems,
		SuccessRate:    summary.SuccessRate,
		ProcessingSummary: map[string]any{
			"items_processed":  len(items),
			"source_language":  "Japanese",
			"target_language":  "English",
		},
	})
	return summary
}

func toBatchItems(items []domain.MenuItem) []batch.Item[any] {
	out := make([]batch.Item[any], len(items))
	for i, item := range items {
		out[i] = batch.Item[any]{ID: item.ID, Payload: item}
	}
	return out
}
