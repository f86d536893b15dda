// Package queue enqueues and dequeues the five per-item enrichment jobs
// (translation, description, allergen, ingredient, search_image) the
// Coordinator fans out to after a categorized menu is saved. Each task
// gets its own NATS subject and queue group, so N worker processes
// subscribed to the same group load-balance the same job stream — the Go
// equivalent of the source system's five Celery queues
// (translation_queue, description_queue, ...).
package queue

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/menusense/pipeline/engine/domain"
)

// TaskNames lists the five fan-out jobs in the order the source system
// triggers them.
var TaskNames = []string{"translation", "description", "allergen", "ingredient", "search_image"}

// Subject returns the NATS subject a task's jobs are published to.
func Subject(taskName string) string {
	return "pipeline.jobs." + taskName
}

// QueueGroup is the shared queue group name every worker process
// subscribes under for a task, so exactly one worker instance handles
// each job.
func QueueGroup(taskName string) string {
	return taskName + "-workers"
}

// Job is the payload one enrichment task receives: the session it belongs
// to and the menu items to process.
type Job struct {
	SessionID string            `json:"session_id"`
	Items     []domain.MenuItem `json:"items"`
}

type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Enqueue publishes a job for one task.
func Enqueue(ctx context.Context, nc *nats.Conn, taskName string, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: Subject(taskName), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

// EnqueueAll publishes the same item set to every task in TaskNames,
// mirroring _trigger_parallel_tasks firing all five Celery tasks together.
func EnqueueAll(ctx context.Context, nc *nats.Conn, sessionID string, items []domain.MenuItem) error {
	job := Job{SessionID: sessionID, Items: items}
	for _, taskName := range TaskNames {
		if err := Enqueue(ctx, nc, taskName, job); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a queue-group handler for one task: nc.QueueSubscribe
// load-balances deliveries across every worker process subscribed under
// the same group, so a job is handled exactly once fleet-wide.
func Subscribe(nc *nats.Conn, taskName string, handler func(context.Context, Job)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(Subject(taskName), QueueGroup(taskName), func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, job)
	})
}
