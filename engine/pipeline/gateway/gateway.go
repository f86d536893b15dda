// Package gateway bridges the event bus and connected HTTP observers: it
// replays a session's completed stages on connect, then forwards live
// events for the remainder of the connection. Grounded on spec.md §4.6 and
// built on pkg/mid's middleware chain the way cmd/api/main.go wires its
// own handlers.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/store"
)

// heartbeatInterval matches spec.md §4.6's 30-second keep-alive.
const heartbeatInterval = 30 * time.Second

// replayOrder is the canonical stage sequence history replay follows.
var replayOrder = []struct {
	stage string
	key   string
}{
	{domain.StageOCR, domain.StageKeyOCR},
	{domain.StageMapping, domain.StageKeyMapping},
	{domain.StageCategorize, domain.StageKeyCategorize},
}

// Gateway tracks live SSE connections per session and serves the stream
// endpoint. It implements events.SubscriberCounter so the Publisher can
// tell whether a broadcast actually reached anyone.
type Gateway struct {
	nc        *nats.Conn
	sessions  *store.SessionStore
	logger    *slog.Logger
	publisher *events.Publisher

	mu    sync.Mutex
	conns map[string]int
}

// New builds a Gateway over the given NATS connection and session store.
func New(nc *nats.Conn, sessions *store.SessionStore, logger *slog.Logger) *Gateway {
	return &Gateway{nc: nc, sessions: sessions, logger: logger, conns: make(map[string]int)}
}

// SetPublisher attaches the event Publisher the Gateway itself is the
// SubscriberCounter for. Set after construction, since the Publisher is
// built from this Gateway (events.NewPublisher(nc, gw)) and can't be
// passed into New before it exists.
func (g *Gateway) SetPublisher(p *events.Publisher) {
	g.publisher = p
}

// SubscriberCount reports how many live connections are currently
// streaming a session, satisfying events.SubscriberCounter.
func (g *Gateway) SubscriberCount(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[sessionID]
}

func (g *Gateway) register(sessionID string) {
	g.mu.Lock()
	g.conns[sessionID]++
	g.mu.Unlock()
}

func (g *Gateway) unregister(sessionID string) {
	g.mu.Lock()
	g.conns[sessionID]--
	if g.conns[sessionID] <= 0 {
		delete(g.conns, sessionID)
	}
	g.mu.Unlock()
}

// HandleStream serves GET /sse/stream/{session_id}: registers the
// connection, replays completed stages as history, then forwards live
// events until the client disconnects.
func (g *Gateway) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := domain.ValidateStreamSessionID(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	g.register(sessionID)
	defer g.unregister(sessionID)

	ctx := r.Context()

	if g.publisher != nil {
		g.publisher.PublishConnectionEstablished(ctx, sessionID, uuid.NewString(), g.SubscriberCount(sessionID))
	}

	for _, env := range g.historyEnvelopes(ctx, sessionID) {
		if !writeEvent(w, flusher, env) {
			return
		}
	}

	live := make(chan events.Envelope, 64)
	sub, err := events.SubscribeContext(ctx, g.nc, sessionID, func(_ context.Context, env events.Envelope) {
		select {
		case live <- env:
		default:
		}
	})
	if err != nil {
		g.logger.Error("subscribe failed", "session_id", sessionID, "err", err)
		return
	}
	defer sub.Unsubscribe()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-live:
			if !writeEvent(w, flusher, env) {
				return
			}
		case <-ticker.C:
			env := heartbeatEnvelope(sessionID, time.Since(start))
			if !writeEvent(w, flusher, env) {
				return
			}
		}
	}
}

// historyEnvelopes synthesizes is_history:true stage_completed events from
// the Session Store's stages blob, in canonical stage order.
func (g *Gateway) historyEnvelopes(ctx context.Context, sessionID string) []events.Envelope {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil
	}
	return buildHistoryEnvelopes(sessionID, session)
}

// buildHistoryEnvelopes is the pure part of history replay: given an
// already-loaded session, synthesize the ordered stage_completed events
// plus, if a progress snapshot was recorded, one historical
// progress_update — factored out of historyEnvelopes so it's testable
// without a live session store.
func buildHistoryEnvelopes(sessionID string, session domain.Session) []events.Envelope {
	var out []events.Envelope
	for _, entry := range replayOrder {
		raw, ok := session.Stages[entry.key]
		if !ok {
			continue
		}
		var completionData any
		if err := json.Unmarshal(raw, &completionData); err != nil {
			continue
		}
		data, err := json.Marshal(events.StageCompletedData{
			Stage:          entry.stage,
			CompletionData: completionData,
			UIAction:       "update_" + entry.stage + "_display",
			IsHistory:      true,
		})
		if err != nil {
			continue
		}
		out = append(out, events.Envelope{
			Type:      events.TypeStageCompleted,
			SessionID: sessionID,
			Data:      data,
			Timestamp: session.UpdatedAt,
		})
	}

	if session.ProgressTaskName != "" {
		if data, err := json.Marshal(events.ProgressUpdateData{
			TaskName:     session.ProgressTaskName,
			Status:       session.ProgressStatus,
			ProgressData: map[string]any{"progress": session.Progress},
			IsHistory:    true,
		}); err == nil {
			out = append(out, events.Envelope{
				Type:      events.TypeProgressUpdate,
				SessionID: sessionID,
				Data:      data,
				Timestamp: session.UpdatedAt,
			})
		}
	}

	return out
}

func heartbeatEnvelope(sessionID string, uptime time.Duration) events.Envelope {
	data, _ := json.Marshal(events.HeartbeatData{Uptime: uptime.Seconds(), Message: "keep-alive"})
	return events.Envelope{Type: events.TypeHeartbeat, SessionID: sessionID, Data: data, Timestamp: time.Now().UTC()}
}

// writeEvent frames one envelope as an SSE event and flushes it. Returns
// false if the write failed (client gone), signaling the caller to stop.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, env events.Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
