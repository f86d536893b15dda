// Package events implements the session event bus: a JSON envelope
// published on a per-session NATS subject and consumed either by live
// subscribers (the Gateway) or by the broadcast-success check the
// Coordinator's fan-out gate depends on.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/menusense/pipeline/pkg/natsutil"
)

// Well-known event type tags.
const (
	TypeStageCompleted        = "stage_completed"
	TypeProgressUpdate        = "progress_update"
	TypeMenuUpdate            = "menu_update"
	TypeError                 = "error"
	TypeParallelTasksStarted  = "parallel_tasks_started"
	TypeConnectionEstablished = "connection_established"
	TypeHeartbeat             = "heartbeat"
)

// BatchCompletedType returns the type tag for a task's batch-completion
// summary event, e.g. "translation_batch_completed".
func BatchCompletedType(taskName string) string {
	return taskName + "_batch_completed"
}

// Envelope is the wire format for every event published on a session's
// channel: {type, session_id, data, timestamp}.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subject returns the NATS subject for a session's event channel. Core
// NATS subjects permit colons within a token, so this keeps the
// "sse:<session_id>" naming from spec.md §6 verbatim.
func Subject(sessionID string) string {
	return "sse:" + sessionID
}

// SubscriberCounter reports how many observers are currently registered
// for a session. The Gateway (§4.6) is the implementation; core pub/sub
// has no built-in subscriber-count return value the way Redis PUBLISH
// does, so broadcast success is determined via this registry instead.
type SubscriberCounter interface {
	SubscriberCount(sessionID string) int
}

// Publisher publishes session events onto the bus.
type Publisher struct {
	nc       *nats.Conn
	counters SubscriberCounter
}

// NewPublisher creates a Publisher. counters may be nil, in which case
// Publish always reports success (used when no Gateway is attached, e.g.
// worker-only processes that don't need the broadcast-gate signal).
func NewPublisher(nc *nats.Conn, counters SubscriberCounter) *Publisher {
	return &Publisher{nc: nc, counters: counters}
}

// Publish serializes data and publishes it on the session's channel.
// Returns whether at least one subscriber was registered for the session
// at publish time.
func (p *Publisher) Publish(ctx context.Context, sessionID, msgType string, data any) (bool, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return false, err
	}
	env := Envelope{
		Type:      msgType,
		SessionID: sessionID,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	if err := natsutil.Publish(ctx, p.nc, Subject(sessionID), env); err != nil {
		return false, err
	}
	if p.counters == nil {
		return true, nil
	}
	return p.counters.SubscriberCount(sessionID) > 0, nil
}

// StageCompletedData is the payload for a stage_completed event.
type StageCompletedData struct {
	Stage          string `json:"stage"`
	CompletionData any    `json:"completion_data"`
	UIAction       string `json:"ui_action"`
	IsHistory      bool   `json:"is_history,omitempty"`
}

// PublishStageCompleted publishes the stage_completed event for one stage.
func (p *Publisher) PublishStageCompleted(ctx context.Context, sessionID, stage string, completionData any) (bool, error) {
	return p.Publish(ctx, sessionID, TypeStageCompleted, StageCompletedData{
		Stage:          stage,
		CompletionData: completionData,
		UIAction:       "update_" + stage + "_display",
	})
}

// ProgressUpdateData is the payload for a progress_update event.
type ProgressUpdateData struct {
	TaskName     string `json:"task_name"`
	Status       string `json:"status"`
	ProgressData any    `json:"progress_data"`
	IsHistory    bool   `json:"is_history,omitempty"`
}

// PublishProgressUpdate publishes a progress_update event.
func (p *Publisher) PublishProgressUpdate(ctx context.Context, sessionID, taskName, status string, progressData any) (bool, error) {
	return p.Publish(ctx, sessionID, TypeProgressUpdate, ProgressUpdateData{
		TaskName:     taskName,
		Status:       status,
		ProgressData: progressData,
	})
}

// MenuUpdateData is the payload for a menu_update event.
type MenuUpdateData struct {
	MenuID   string `json:"menu_id"`
	MenuData any    `json:"menu_data"`
}

// PublishMenuUpdate publishes a menu_update event for one item.
func (p *Publisher) PublishMenuUpdate(ctx context.Context, sessionID, menuID string, menuData any) (bool, error) {
	return p.Publish(ctx, sessionID, TypeMenuUpdate, MenuUpdateData{
		MenuID:   menuID,
		MenuData: menuData,
	})
}

// ErrorData is the payload for an error event.
type ErrorData struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	TaskName     string `json:"task_name,omitempty"`
}

// PublishError publishes an error event.
func (p *Publisher) PublishError(ctx context.Context, sessionID, errorType, errorMessage, taskName string) (bool, error) {
	return p.Publish(ctx, sessionID, TypeError, ErrorData{
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
		TaskName:     taskName,
	})
}

// ParallelTasksStartedData is the payload for the parallel_tasks_started event.
type ParallelTasksStartedData struct {
	ParallelTasks []string          `json:"parallel_tasks"`
	TaskIDs       map[string]string `json:"task_ids"`
	TotalItems    int               `json:"total_items"`
	ExecutionMode string            `json:"execution_mode"`
}

// PublishParallelTasksStarted publishes the parallel_tasks_started event
// once five per-item work queues have been enqueued.
func (p *Publisher) PublishParallelTasksStarted(ctx context.Context, sessionID string, data ParallelTasksStartedData) (bool, error) {
	data.ExecutionMode = "parallel"
	return p.Publish(ctx, sessionID, TypeParallelTasksStarted, data)
}

// BatchCompletedData is the payload for a "<task>_batch_completed" event.
type BatchCompletedData struct {
	TaskType         string `json:"task_type"`
	CompletedItems   int    `json:"completed_items"`
	TotalItems       int    `json:"total_items"`
	SuccessRate      float64 `json:"success_rate"`
	ProcessingSummary any   `json:"processing_summary,omitempty"`
}

// PublishBatchCompleted publishes a task's "<task>_batch_completed" summary.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, sessionID, taskName string, data BatchCompletedData) (bool, error) {
	data.TaskType = taskName
	return p.Publish(ctx, sessionID, BatchCompletedType(taskName), data)
}

// ConnectionEstablishedData is the payload for a connection_established event.
type ConnectionEstablishedData struct {
	Status            string `json:"status"`
	ConnectionID      string `json:"connection_id"`
	ActiveConnections int    `json:"active_connections"`
}

// PublishConnectionEstablished publishes a connection_established event.
func (p *Publisher) PublishConnectionEstablished(ctx context.Context, sessionID, connectionID string, activeConnections int) (bool, error) {
	return p.Publish(ctx, sessionID, TypeConnectionEstablished, ConnectionEstablishedData{
		Status:            "connected",
		ConnectionID:      connectionID,
		ActiveConnections: activeConnections,
	})
}

// HeartbeatData is the payload for a heartbeat event.
type HeartbeatData struct {
	Uptime  float64 `json:"uptime"`
	Message string  `json:"message"`
}

// PublishHeartbeat publishes a heartbeat event.
func (p *Publisher) PublishHeartbeat(ctx context.Context, sessionID string, uptime time.Duration) (bool, error) {
	return p.Publish(ctx, sessionID, TypeHeartbeat, HeartbeatData{
		Uptime:  uptime.Seconds(),
		Message: "keep-alive",
	})
}
