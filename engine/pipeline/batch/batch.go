// Package batch implements the bounded-concurrency engine worker tasks use
// to process a session's menu items: split into fixed-size batches, run up
// to MaxConcurrentBatches batches at once (and every item within a batch
// concurrently), publish progress as work lands, and report a final
// success-rate summary. Grounded on original_source/app_2/tasks/
// batch_processor.py's BatchConfig/process_items, re-derived onto
// pkg/fn.ParMapResult's semaphore-bounded fan-out instead of asyncio.gather
// + Semaphore.
package batch

import (
	"context"
	"errors"

	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/pkg/fn"
)

var errPersistFailed = errors.New("persist failed")

// Config mirrors the source's BatchConfig dataclass.
type Config struct {
	BatchSize            int
	MaxConcurrentBatches int
	TaskName             string
}

// DefaultConfig matches the source's dataclass defaults.
var DefaultConfig = Config{BatchSize: 8, MaxConcurrentBatches: 3}

// ItemResult is one item's outcome from a Process run: Data carries
// whatever the task's process function produced, for Executor to hand to
// the caller's menu-update field construction.
type ItemResult struct {
	ItemID string
	Data   any
	Err    error
}

// Summary is the aggregate outcome of a Process run, matching the source's
// _aggregate_and_notify return shape.
type Summary struct {
	TaskName       string
	CompletedItems int
	TotalItems     int
	SuccessRate    float64
	ErrorCount     int
}

// Executor runs a Config-shaped batch job over a slice of items, emitting
// progress_update events at start and completion via the shared event
// Publisher.
type Executor struct {
	Config    Config
	Publisher *events.Publisher

	// OnItemSuccess, if set, runs after one item persists successfully —
	// tasks use it to publish their task-specific menu_update event, the
	// way batch_processor.py's process_item calls publish_menu_update
	// with task-specific fields right after a successful DB update.
	OnItemSuccess func(ctx context.Context, itemID string, data any)
}

// New constructs an Executor, falling back to DefaultConfig for zero-value
// BatchSize/MaxConcurrentBatches fields (TaskName is always the caller's).
func New(cfg Config, pub *events.Publisher) *Executor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = DefaultConfig.MaxConcurrentBatches
	}
	return &Executor{Config: cfg, Publisher: pub}
}

// Item is the minimal shape Process needs from each input element: an ID to
// key persistence and per-item progress notifications, plus whatever a task
// wants to pass through to its own process function via the generic T.
type Item[T any] struct {
	ID      string
	Payload T
}

// ProcessFunc runs a task's domain logic for one item. persistFn is called
// with the item's ID and result only when process succeeds.
type ProcessFunc[T, R any] func(ctx context.Context, item Item[T]) (R, error)

// PersistFunc writes one item's result, returning whether the write
// succeeded (mirroring the source's db_updater_func bool return, which
// batch_processor.py treats distinctly from a raised exception).
type PersistFunc[R any] func(ctx context.Context, itemID string, result R) (bool, error)

// Process runs items through processFn then persistFn with bounded
// concurrency, publishing a progress_update("started") event up front and
// a progress_update("completed") summary at the end.
func (e *Executor) Process(ctx context.Context, sessionID string, items []Item[any], processFn ProcessFunc[any, any], persistFn PersistFunc[any]) Summary {
	total := len(items)
	if e.Publisher != nil {
		e.Publisher.PublishProgressUpdate(ctx, sessionID, e.Config.TaskName, "started", map[string]any{
			"total_items": total,
			"batch_size":  e.Config.BatchSize,
		})
	}

	batches := fn.Chunk(items, e.Config.BatchSize)
	batchResults := fn.ParMap(batches, e.Config.MaxConcurrentBatches, func(b []Item[any]) []ItemResult {
		return e.processBatch(ctx, sessionID, b, processFn, persistFn)
	})

	completed := 0
	errCount := 0
	for _, br := range batchResults {
		for _, r := range br {
			if r.Err == nil {
				completed++
			} else {
				errCount++
			}
		}
	}

	successRate := 0.0
	if total > 0 {
		successRate = roundOne(float64(completed) / float64(total) * 100)
	}

	if e.Publisher != nil {
		e.Publisher.PublishProgressUpdate(ctx, sessionID, e.Config.TaskName, "completed", map[string]any{
			"progress":        100,
			"completed_items": completed,
			"total_items":     total,
			"success_rate":    successRate,
		})
	}

	return Summary{
		TaskName:       e.Config.TaskName,
		CompletedItems: completed,
		TotalItems:     total,
		SuccessRate:    successRate,
		ErrorCount:     errCount,
	}
}

// processBatch runs every item in one batch concurrently, publishing an
// error event per failed item (process error or persist failure) the way
// the source's process_item does.
func (e *Executor) processBatch(ctx context.Context, sessionID string, items []Item[any], processFn ProcessFunc[any, any], persistFn PersistFunc[any]) []ItemResult {
	return fn.ParMap(items, len(items), func(item Item[any]) ItemResult {
		data, err := processFn(ctx, item)
		if err != nil {
			e.publishItemError(ctx, sessionID, item.ID, err)
			return ItemResult{ItemID: item.ID, Err: err}
		}
		ok, err := persistFn(ctx, item.ID, data)
		if err != nil {
			e.publishItemError(ctx, sessionID, item.ID, err)
			return ItemResult{ItemID: item.ID, Err: err}
		}
		if !ok {
			e.publishItemError(ctx, sessionID, item.ID, errPersistFailed)
			return ItemResult{ItemID: item.ID, Err: errPersistFailed}
		}
		if e.OnItemSuccess != nil {
			e.OnItemSuccess(ctx, item.ID, data)
		}
		return ItemResult{ItemID: item.ID, Data: data}
	})
}

func (e *Executor) publishItemError(ctx context.Context, sessionID, itemID string, err error) {
	if e.Publisher == nil {
		return
	}
	e.Publisher.PublishError(ctx, sessionID, e.Config.TaskName+"_item_failed", err.Error(), e.Config.TaskName)
}

func roundOne(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
