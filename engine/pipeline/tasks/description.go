package tasks

import (
	"context"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/batch"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/provider"
)

// DescriptionConfig matches describe_task.py's BatchConfig(batch_size=6,
// max_concurrent_batches=2, task_name="description").
var DescriptionConfig = batch.Config{BatchSize: 6, MaxConcurrentBatches: 2, TaskName: "description"}

// RunDescription generates a natural-language description for every item.
func RunDescription(ctx context.Context, sessionID string, items []domain.MenuItem, describer provider.Describer, d Deps) batch.Summary {
	exec := batch.New(DescriptionConfig, d.Publisher)
	exec.OnItemSuccess = func(ctx context.Context, itemID string, data any) {
		description := descriptionOrFallback(data.(string))
		d.Publisher.PublishMenuUpdate(ctx, sessionID, itemID, map[string]any{
			"task_type":           "description",
			"status":              "completed",
			"item_id":             itemID,
			"description":         description,
			"description_language": "ja",
			"description_length":  len(description),
		})
	}

	batchItems := toBatchItems(items)
	summary := exec.Process(ctx, sessionID, batchItems,
		func(ctx context.Context, item batch.Item[any]) (any, error) {
			mi := item.Payload.(domain.MenuItem)
			return callProvider(ctx, d, func(ctx context.Context) (string, error) {
				return describer.Describe(ctx, mi.Name, mi.Category)
			})
		},
		func(ctx context.Context, itemID string, result any) (bool, error) {
			description := descriptionOrFallback(result.(string))
			return persistItem(ctx, d, "description", itemID, func(mi *domain.MenuItem) {
				mi.Description = stringPtr(description)
			})
		},
	)

	d.Publisher.PublishBatchCompleted(ctx, sessionID, "description", events.BatchCompletedData{
		CompletedItems: summary.CompletedItems,
		TotalItems:     summary.TotalItems,
		SuccessRate:    summary.SuccessRate,
		ProcessingSummary: map[string]any{
			"items_processed":     len(items),
			"description_language": "Japanese",
			"content_type":        "detailed_menu_descriptions",
		},
	})
	return summary
}

// descriptionFallback is describe_task.py's canned message when the
// provider returns an empty description.
const descriptionFallback = "説明情報を生成できませんでした"

func descriptionOrFallback(description string) string {
	if description == "" {
		return descriptionFallback
	}
	return description
}
