// Package pipeline implements the Coordinator: the staged OCR → mapping →
// categorize sequence that turns one uploaded menu photo into saved menu
// items and triggers the five enrichment fan-out jobs once the
// categorize-stage broadcast confirms at least one live subscriber.
// Grounded on original_source/app_2/pipelines/pipeline_runner.py's
// MenuProcessingPipeline.process_menu_image.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/provider"
	"github.com/menusense/pipeline/engine/pipeline/queue"
	"github.com/menusense/pipeline/engine/pipeline/store"
	"github.com/menusense/pipeline/pkg/fn"
)

// Progress percentages at each stage boundary, resolved in SPEC_FULL.md §9
// from the source's literal 10/25/35/45/55/65/90/100 schedule.
const (
	ProgressOCRStart          = 10
	ProgressOCRDone           = 25
	ProgressMappingStart      = 35
	ProgressMappingDone       = 45
	ProgressCategorizeStart   = 55
	ProgressCategorizeDone    = 65
	ProgressParallelTasks     = 90
	ProgressInitialProcessing = 100
)

// Coordinator wires the providers and persistence collaborators the
// staged pipeline needs.
type Coordinator struct {
	Sessions    *store.SessionStore
	Items       *store.ItemStore
	Publisher   *events.Publisher
	OCR         provider.OCR
	Categorizer provider.Categorizer
	NC          *nats.Conn
}

// ProcessOutcome is what a successful Process run reports back to the
// HTTP handler.
type ProcessOutcome struct {
	SessionID              string
	OCRElementCount        int
	Categories             []string
	SavedItems             []domain.MenuItem
	ParallelTasksTriggered bool
	ProcessingTime         time.Duration
}

// Process runs the full pipeline for one uploaded image: duplicate-guard,
// OCR, mapping, categorize, item persistence, and (if the categorize-stage
// broadcast reached a live subscriber) fan-out of the five enrichment
// jobs.
func (c *Coordinator) Process(ctx context.Context, sessionID string, imageBytes []byte, filename string) fn.Result[ProcessOutcome] {
	ctx, span := otel.Tracer("engine/pipeline").Start(ctx, "pipeline.process")
	defer span.End()

	start := time.Now()

	if sessionID == "" {
		return fn.Err[ProcessOutcome](domain.NewValidationError("session_id", sessionID, domain.ErrEmptySessionID))
	}
	if len(imageBytes) == 0 {
		return fn.Err[ProcessOutcome](domain.NewValidationError("image", "", domain.ErrEmptyImage))
	}

	if stateErr := c.guardDuplicate(ctx, sessionID); stateErr != nil {
		return fn.Err[ProcessOutcome](stateErr)
	}

	now := time.Now()
	if _, err := c.upsertSession(ctx, sessionID, now); err != nil {
		return fn.Err[ProcessOutcome](fmt.Errorf("upsert session: %w", err))
	}

	c.Publisher.PublishProgressUpdate(ctx, sessionID, "initial_processing", "started", map[string]any{
		"phase":    "enhanced_pipeline",
		"filename": orDefault(filename, "uploaded_image"),
		"stages":   []string{domain.StageOCR, domain.StageMapping, domain.StageCategorize, "parallel_tasks"},
	})

	ocrElements, err := c.runOCRStage(ctx, sessionID, imageBytes)
	if err != nil {
		c.failSession(ctx, sessionID, "enhanced_pipeline_processing_failed", err)
		return fn.Err[ProcessOutcome](err)
	}

	formatted := c.runMappingStage(ctx, sessionID, ocrElements)

	categorized, savedItems, categorizeBroadcastOK, err := c.runCategorizeStage(ctx, sessionID, formatted)
	if err != nil {
		c.failSession(ctx, sessionID, "enhanced_pipeline_processing_failed", err)
		return fn.Err[ProcessOutcome](err)
	}

	itemIDs := make([]string, len(savedItems))
	for i, item := range savedItems {
		itemIDs[i] = item.ID
	}
	c.patchSession(ctx, sessionID, func(s *domain.Session) {
		s.Status = domain.StatusProcessing
		s.ItemIDs = itemIDs
		s.UpdatedAt = time.Now()
	})

	triggered := false
	if categorizeBroadcastOK && len(savedItems) > 0 {
		c.publishProgress(ctx, sessionID, "parallel_tasks", "started", ProgressParallelTasks)
		if err := c.triggerParallelTasks(ctx, sessionID, savedItems); err != nil {
			c.Publisher.PublishError(ctx, sessionID, "parallel_tasks_trigger_failed", err.Error(), "parallel_tasks")
		} else {
			triggered = true
		}
	} else if !categorizeBroadcastOK {
		c.Publisher.PublishError(ctx, sessionID, "sse_broadcast_failed", "categorize SSE broadcast failed, parallel tasks not triggered", "parallel_tasks")
	}

	c.publishProgress(ctx, sessionID, "initial_processing", "completed", ProgressInitialProcessing)

	c.patchSession(ctx, sessionID, func(s *domain.Session) {
		s.Status = domain.StatusCompleted
		s.ItemIDs = itemIDs
		s.UpdatedAt = time.Now()
	})

	return fn.Ok(ProcessOutcome{
		SessionID:              sessionID,
		OCRElementCount:        len(ocrElements),
		Categories:             extractCategories(categorized),
		SavedItems:             savedItems,
		ParallelTasksTriggered: triggered,
		ProcessingTime:         time.Since(start),
	})
}

// guardDuplicate rejects a resubmission against a session already
// PROCESSING or COMPLETED, allowing reprocessing for PENDING/FAILED.
func (c *Coordinator) guardDuplicate(ctx context.Context, sessionID string) error {
	existing, err := c.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil // not found: fresh session
	}
	switch existing.Status {
	case domain.StatusProcessing:
		return &domain.StateError{Wrapped: domain.ErrDuplicateProcessing, ExistingStatus: existing.Status, ExistingCount: len(existing.ItemIDs)}
	case domain.StatusCompleted:
		return &domain.StateError{Wrapped: domain.ErrAlreadyCompleted, ExistingStatus: existing.Status, ExistingCount: len(existing.ItemIDs)}
	default:
		return nil
	}
}

// upsertSession creates a fresh session on first submission, or
// transitions an existing PENDING/FAILED session back to PROCESSING on
// reprocessing — read-modify-write via patchSession so a reprocessed
// session keeps its prior Stages/CreatedAt instead of having them
// clobbered by Update's SET n += $props over a sparse struct.
func (c *Coordinator) upsertSession(ctx context.Context, sessionID string, now time.Time) (domain.Session, error) {
	if _, err := c.Sessions.Get(ctx, sessionID); err != nil {
		return c.Sessions.Create(ctx, domain.Session{ID: sessionID, Status: domain.StatusProcessing, CreatedAt: now, UpdatedAt: now})
	}
	return c.patchSession(ctx, sessionID, func(s *domain.Session) {
		s.Status = domain.StatusProcessing
		s.UpdatedAt = now
	})
}

func (c *Coordinator) failSession(ctx context.Context, sessionID, errorType string, err error) {
	c.Publisher.PublishError(ctx, sessionID, errorType, err.Error(), "enhanced_initial_processing")
	c.patchSession(ctx, sessionID, func(s *domain.Session) {
		s.Status = domain.StatusFailed
		s.UpdatedAt = time.Now()
	})
}

// patchSession reads the full session, applies mutate to it, then writes
// the whole thing back — avoiding the sparse-struct overwrite bug where
// Update's generic "SET n += $props" clobbers fields the caller didn't
// set (Stages, CreatedAt) because sessionToMap serializes every field
// unconditionally. Falls back to a bare new session if the read misses
// (e.g. a session record not yet created).
func (c *Coordinator) patchSession(ctx context.Context, sessionID string, mutate func(*domain.Session)) (domain.Session, error) {
	session, err := c.Sessions.Get(ctx, sessionID)
	if err != nil {
		session = domain.Session{ID: sessionID, CreatedAt: time.Now()}
	}
	mutate(&session)
	return c.Sessions.Update(ctx, session)
}

// publishProgress publishes a progress_update event and persists the
// percentage/task-name snapshot on the session row, so a late-connecting
// SSE observer's history replay (gateway.historyEnvelopes) has something
// to synthesize a historical progress_update from.
func (c *Coordinator) publishProgress(ctx context.Context, sessionID, taskName, status string, progress int) {
	c.Publisher.PublishProgressUpdate(ctx, sessionID, taskName, status, map[string]any{"progress": progress})
	if err := c.Sessions.SetProgress(ctx, sessionID, taskName, status, progress); err != nil {
		c.Publisher.PublishError(ctx, sessionID, "progress_persist_failed", err.Error(), taskName)
	}
}

func (c *Coordinator) triggerParallelTasks(ctx context.Context, sessionID string, items []domain.MenuItem) error {
	if err := queue.EnqueueAll(ctx, c.NC, sessionID, items); err != nil {
		return err
	}
	taskIDs := make(map[string]string, len(queue.TaskNames))
	for _, name := range queue.TaskNames {
		taskIDs[name] = fmt.Sprintf("%s-%s", sessionID, name)
	}
	c.Publisher.PublishParallelTasksStarted(ctx, sessionID, events.ParallelTasksStartedData{
		ParallelTasks: queue.TaskNames,
		TaskIDs:       taskIDs,
		TotalItems:    len(items),
	})
	return nil
}

func extractCategories(menu domain.CategorizedMenu) []string {
	names := make([]string, len(menu.Menu.Categories))
	for i, cat := range menu.Menu.Categories {
		names[i] = cat.Name
	}
	return names
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
