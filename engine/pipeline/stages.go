package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/menusense/pipeline/engine/domain"
)

// itemNamespace scopes deterministic menu-item IDs, following
// engine/ingest.go's uuid.NewSHA1(uuid.NameSpaceURL, ...) pattern for
// reproducible IDs from a (session, unique-key) pair.
var itemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("menusense.menu_item"))

func newItemID(sessionID, uniqueKey string) string {
	return uuid.NewSHA1(itemNamespace, []byte(sessionID+"\x00"+uniqueKey)).String()
}

// runOCRStage extracts positioned text, persists the stage result, and
// broadcasts its completion.
func (c *Coordinator) runOCRStage(ctx context.Context, sessionID string, imageBytes []byte) ([]domain.OCRElement, error) {
	c.publishProgress(ctx, sessionID, domain.StageOCR, "processing", ProgressOCRStart)

	elements, err := c.OCR.Extract(ctx, imageBytes, "paragraph")
	if err != nil {
		c.Publisher.PublishError(ctx, sessionID, "ocr_processing_failed", err.Error(), domain.StageOCR)
		return nil, fmt.Errorf("ocr stage: %w", err)
	}

	stageData := map[string]any{
		"ocr_elements_count": len(elements),
		"ocr_results":        elements,
		"stage_completed_at": time.Now().UTC(),
		"image_analysis": map[string]any{
			"text_density":       ClassifyDensity(len(elements)),
			"elements_extracted": len(elements),
			"preview_available":  len(elements) > 0,
		},
	}
	if err := c.Sessions.SetStage(ctx, sessionID, domain.StageKeyOCR, stageData); err != nil {
		return nil, fmt.Errorf("persist ocr stage: %w", err)
	}

	c.Publisher.PublishStageCompleted(ctx, sessionID, domain.StageOCR, stageData)
	c.publishProgress(ctx, sessionID, domain.StageOCR, "completed", ProgressOCRDone)

	return elements, nil
}

// runMappingStage formats the OCR output into the text block the
// categorizer expects, persists it, and broadcasts its completion.
func (c *Coordinator) runMappingStage(ctx context.Context, sessionID string, elements []domain.OCRElement) string {
	c.publishProgress(ctx, sessionID, domain.StageMapping, "processing", ProgressMappingStart)

	formatted := FormatMappingData(elements)

	preview := formatted
	if len(preview) > 500 {
		preview = preview[:500]
	}
	stageData := map[string]any{
		"formatted_data_length":  len(formatted),
		"mapping_preview":        preview,
		"stage_completed_at":     time.Now().UTC(),
		"ocr_elements_processed": len(elements),
	}
	if err := c.Sessions.SetStage(ctx, sessionID, domain.StageKeyMapping, stageData); err != nil {
		// Mapping is pure computation over already-persisted OCR output;
		// a failed stage-blob write doesn't invalidate the formatted text
		// the categorize stage needs next, so this is logged upstream via
		// the event below rather than aborting the pipeline.
		c.Publisher.PublishError(ctx, sessionID, "mapping_stage_persist_failed", err.Error(), domain.StageMapping)
	}

	c.Publisher.PublishStageCompleted(ctx, sessionID, domain.StageMapping, stageData)
	c.publishProgress(ctx, sessionID, domain.StageMapping, "completed", ProgressMappingDone)

	return formatted
}

// runCategorizeStage calls the categorizer, saves the resulting menu
// items, persists the stage result, and reports whether the
// stage_completed broadcast reached a live subscriber — the signal the
// Coordinator gates the enrichment fan-out on.
func (c *Coordinator) runCategorizeStage(ctx context.Context, sessionID, formattedText string) (domain.CategorizedMenu, []domain.MenuItem, bool, error) {
	c.publishProgress(ctx, sessionID, domain.StageCategorize, "processing", ProgressCategorizeStart)

	categorized, err := c.Categorizer.Categorize(ctx, formattedText, "paragraph")
	if err != nil {
		c.Publisher.PublishError(ctx, sessionID, "categorize_processing_failed", err.Error(), domain.StageCategorize)
		return categorized, nil, false, fmt.Errorf("categorize stage: %w", err)
	}

	items := buildMenuItems(sessionID, categorized)
	if len(items) > 0 {
		if err := c.Items.BulkSave(ctx, items); err != nil {
			c.Publisher.PublishError(ctx, sessionID, "categorize_processing_failed", err.Error(), domain.StageCategorize)
			return categorized, nil, false, fmt.Errorf("save menu items: %w", err)
		}
	}

	stageData := map[string]any{
		"categories_found":   extractCategories(categorized),
		"menu_items_saved":   len(items),
		"saved_menu_items":   items,
		"stage_completed_at": time.Now().UTC(),
	}
	if err := c.Sessions.SetStage(ctx, sessionID, domain.StageKeyCategorize, stageData); err != nil {
		c.Publisher.PublishError(ctx, sessionID, "categorize_stage_persist_failed", err.Error(), domain.StageCategorize)
	}

	broadcastOK, _ := c.Publisher.PublishStageCompleted(ctx, sessionID, domain.StageCategorize, stageData)
	c.publishProgress(ctx, sessionID, domain.StageCategorize, "completed", ProgressCategorizeDone)

	return categorized, items, broadcastOK, nil
}

// buildMenuItems flattens a categorized menu into MenuItem rows, silently
// dropping items with an empty name and skipping duplicate (name,
// category) pairs per domain.UniqueKey.
func buildMenuItems(sessionID string, menu domain.CategorizedMenu) []domain.MenuItem {
	seen := make(map[string]bool)
	var items []domain.MenuItem
	now := time.Now()

	for _, category := range menu.Menu.Categories {
		for _, raw := range category.Items {
			if strings.TrimSpace(raw.Name) == "" {
				continue
			}
			key := domain.UniqueKey(raw.Name, category.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, domain.MenuItem{
				ID:        newItemID(sessionID, key),
				SessionID: sessionID,
				Name:      raw.Name,
				Category:  category.Name,
				Price:     raw.Price,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	return items
}
