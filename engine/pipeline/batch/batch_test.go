package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func items(n int) []Item[any] {
	out := make([]Item[any], n)
	for i := range out {
		out[i] = Item[any]{ID: string(rune('a' + i))}
	}
	return out
}

func TestProcessAllSucceed(t *testing.T) {
	e := New(Config{BatchSize: 2, MaxConcurrentBatches: 2, TaskName: "t"}, nil)
	summary := e.Process(context.Background(), "s1", items(5),
		func(ctx context.Context, item Item[any]) (any, error) { return "ok", nil },
		func(ctx context.Context, id string, result any) (bool, error) { return true, nil },
	)
	if summary.CompletedItems != 5 || summary.TotalItems != 5 {
		t.Fatalf("got %+v", summary)
	}
	if summary.SuccessRate != 100 {
		t.Fatalf("expected 100%% success, got %v", summary.SuccessRate)
	}
}

func TestProcessPartialFailure(t *testing.T) {
	e := New(Config{BatchSize: 3, MaxConcurrentBatches: 1, TaskName: "t"}, nil)
	summary := e.Process(context.Background(), "s1", items(4),
		func(ctx context.Context, item Item[any]) (any, error) {
			if item.ID == "a" {
				return nil, errors.New("boom")
			}
			return "ok", nil
		},
		func(ctx context.Context, id string, result any) (bool, error) { return true, nil },
	)
	if summary.CompletedItems != 3 || summary.ErrorCount != 1 {
		t.Fatalf("got %+v", summary)
	}
	if summary.SuccessRate != 75 {
		t.Fatalf("expected 75%%, got %v", summary.SuccessRate)
	}
}

func TestProcessPersistFailureCountsAsError(t *testing.T) {
	e := New(Config{BatchSize: 10, MaxConcurrentBatches: 1, TaskName: "t"}, nil)
	summary := e.Process(context.Background(), "s1", items(2),
		func(ctx context.Context, item Item[any]) (any, error) { return "ok", nil },
		func(ctx context.Context, id string, result any) (bool, error) { return false, nil },
	)
	if summary.CompletedItems != 0 || summary.ErrorCount != 2 {
		t.Fatalf("got %+v", summary)
	}
}

func TestProcessEmptyItems(t *testing.T) {
	e := New(Config{TaskName: "t"}, nil)
	summary := e.Process(context.Background(), "s1", nil,
		func(ctx context.Context, item Item[any]) (any, error) { return nil, nil },
		func(ctx context.Context, id string, result any) (bool, error) { return true, nil },
	)
	if summary.TotalItems != 0 || summary.SuccessRate != 0 {
		t.Fatalf("got %+v", summary)
	}
}

func TestOnItemSuccessCalledOnlyForSuccesses(t *testing.T) {
	e := New(Config{BatchSize: 5, MaxConcurrentBatches: 1, TaskName: "t"}, nil)
	var mu sync.Mutex
	var succeeded []string
	e.OnItemSuccess = func(ctx context.Context, itemID string, data any) {
		mu.Lock()
		defer mu.Unlock()
		succeeded = append(succeeded, itemID)
	}
	e.Process(context.Background(), "s1", items(3),
		func(ctx context.Context, item Item[any]) (any, error) {
			if item.ID == "b" {
				return nil, errors.New("fail")
			}
			return "ok", nil
		},
		func(ctx context.Context, id string, result any) (bool, error) { return true, nil },
	)
	if len(succeeded) != 2 {
		t.Fatalf("expected 2 successes, got %v", succeeded)
	}
}

func TestDefaultConfigFillsZeroValues(t *testing.T) {
	e := New(Config{TaskName: "t"}, nil)
	if e.Config.BatchSize != DefaultConfig.BatchSize || e.Config.MaxConcurrentBatches != DefaultConfig.MaxConcurrentBatches {
		t.Fatalf("expected defaults filled, got %+v", e.Config)
	}
}
