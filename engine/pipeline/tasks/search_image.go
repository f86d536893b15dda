package tasks

import (
	"context"
	"encoding/json"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/batch"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/provider"
)

// SearchImageConfig matches search_image_task.py's BatchConfig(batch_size=5,
// max_concurrent_batches=2, task_name="search_image").
var SearchImageConfig = batch.Config{BatchSize: 5, MaxConcurrentBatches: 2, TaskName: "search_image"}

// imageCount is how many representative images to request per item.
const imageCount = 3

// RunSearchImage finds representative imagery for every item.
func RunSearchImage(ctx context.Context, sessionID string, items []domain.MenuItem, searcher provider.ImageSearcher, d Deps) batch.Summary {
	exec := batch.New(SearchImageConfig, d.Publisher)
	exec.OnItemSuccess = func(ctx context.Context, itemID string, data any) {
		results := data.([]provider.ImageResult)
		status := "no_results"
		if len(results) > 0 {
			status = "completed"
		}
		d.Publisher.PublishMenuUpdate(ctx, sessionID, itemID, map[string]any{
			"task_type":            "search_image",
			"status":               "completed",
			"item_id":              itemID,
			"search_engine":        results,
			"images_found":         len(results),
			"image_search_status":  status,
		})
	}

	batchItems := toBatchItems(items)
	summary := exec.Process(ctx, sessionID, batchItems,
		func(ctx context.Context, item batch.Item[any]) (any, error) {
			mi := item.Payload.(domain.MenuItem)
			return callProvider(ctx, d, func(ctx context.Context) ([]provider.ImageResult, error) {
				return searcher.SearchImages(ctx, mi.Name, mi.Category, imageCount)
			})
		},
		func(ctx context.Context, itemID string, result any) (bool, error) {
			results := result.([]provider.ImageResult)
			links := make([]string, len(results))
			for i, r := range results {
				links[i] = r.Link
			}
			encoded, err := json.Marshal(links)
			if err != nil {
				return false, err
			}
			return persistItem(ctx, d, "search_image", itemID, func(mi *domain.MenuItem) {
				mi.SearchImages = stringPtr(string(encoded))
			})
		},
	)

	d.Publisher.PublishBatchCompleted(ctx, sessionID, "search_image", events.BatchCompletedData{
		CompletedItems: summary.CompletedItems,
		TotalItems:     summary.TotalItems,
		SuccessRate:    summary.SuccessRate,
		ProcessingSummary: map[string]any{
			"items_processed": len(items),
			"search_provider": "image_search",
		},
	})
	return summary
}
