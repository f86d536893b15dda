// Package tasks implements the five per-item enrichment jobs that fan out
// once a menu has been categorized: translation, description, allergen,
// ingredient, and search_image. Each wraps a batch.Executor with a
// provider call and a lock-guarded, linear-backoff persist — grounded on
// original_source/app_2/tasks/translate_task.py and its four siblings.
package tasks

import (
	"context"
	"time"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/batch"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/lock"
	"github.com/menusense/pipeline/engine/pipeline/store"
	"github.com/menusense/pipeline/pkg/resilience"
)

// persistRetryDelays is the fixed linear backoff schedule of translate_task.py
// (0.5 * (attempt+1) seconds), one entry per persist attempt. The delay at
// index i is waited after a failed attempt i; no wait follows the last
// attempt, so only 500ms and 1000ms are ever slept. This is deliberately NOT
// pkg/fn/retry.go's exponential+jittered Retry — the source schedule is
// linear and fixed, not exponential.
var persistRetryDelays = []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 1500 * time.Millisecond}

// lockTTL and lockRetryPoll mirror the source's `ex=10` lock TTL and its
// implicit tight poll loop for the menu_update:<task>:<item_id> lock;
// lockAcquireWait bounds how long persistItem waits to acquire it.
const (
	lockTTL         = 10 * time.Second
	lockRetryPoll   = 50 * time.Millisecond
	lockAcquireWait = 5 * time.Second
)

// Deps bundles the collaborators every task needs: the item store to
// persist into, the distributed lock guarding per-item updates, the event
// publisher for per-item menu_update and batch-completion broadcasts, and
// the resilience wrappers every provider call goes through.
type Deps struct {
	Items     *store.ItemStore
	Lock      *lock.Lock
	Publisher *events.Publisher
	Breaker   *resilience.Breaker
	Limiter   *resilience.Limiter
}

// callProvider runs a provider call through the rate limiter then the
// circuit breaker, matching spec.md's requirement that every external
// capability call is both breaker- and limiter-guarded.
func callProvider[T any](ctx context.Context, d Deps, f func(context.Context) (T, error)) (T, error) {
	var out T
	err := d.Limiter.CallWait(ctx, func(ctx context.Context) error {
		return d.Breaker.Call(ctx, func(ctx context.Context) error {
			v, err := f(ctx)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	})
	return out, err
}

// persistItem acquires the per-(task,item) lock, then tries mutate against
// a freshly-read item up to 3 times, waiting 500ms and then 1000ms between
// attempts, before giving up — mirroring translate_task.py's
// translation_db_updater retry loop. A failed Get (including an item that
// is not yet visible after the categorize stage created it) is retried the
// same way as a failed Update.
func persistItem(ctx context.Context, d Deps, taskName, itemID string, mutate func(*domain.MenuItem)) (bool, error) {
	resourceKey := "menu_update:" + taskName + ":" + itemID
	var ok bool
	var lastErr error

	err := d.Lock.WithLock(ctx, resourceKey, lockTTL, lockRetryPoll, lockAcquireWait, func(ctx context.Context) error {
		for attempt := 0; attempt < len(persistRetryDelays); attempt++ {
			item, getErr := d.Items.Get(ctx, itemID)
			if getErr != nil {
				lastErr = getErr
			} else {
				mutate(&item)
				if _, updErr := d.Items.Update(ctx, item); updErr == nil {
					ok = true
					return nil
				} else {
					lastErr = updErr
				}
			}
			if attempt < len(persistRetryDelays)-1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(persistRetryDelays[attempt]):
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, lastErr
	}
	return true, nil
}

func stringPtr(s string) *string { return &s }
