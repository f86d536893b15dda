// Package store implements Neo4j-backed persistence for sessions and menu
// items, built on pkg/repo's generic Neo4jRepo the same way the teacher's
// graph layer wired every node type: a toMap/fromRecord pair per entity
// plus NewNeo4jRepo.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/pkg/repo"
)

// SessionStore persists domain.Session nodes.
type SessionStore struct {
	repo   *repo.Neo4jRepo[domain.Session, string]
	driver neo4j.DriverWithContext
}

// NewSessionStore builds a SessionStore over the given driver.
func NewSessionStore(driver neo4j.DriverWithContext) *SessionStore {
	return &SessionStore{
		driver: driver,
		repo: repo.NewNeo4jRepo[domain.Session, string](
			driver, "Session", sessionToMap, sessionFromRecord,
		),
	}
}

func sessionToMap(s domain.Session) map[string]any {
	stages, _ := json.Marshal(s.Stages)
	return map[string]any{
		"id":                 s.ID,
		"status":             string(s.Status),
		"current_stage":      s.CurrentStage,
		"stages":             string(stages),
		"item_ids":           s.ItemIDs,
		"progress":           s.Progress,
		"progress_task_name": s.ProgressTaskName,
		"progress_status":    s.ProgressStatus,
		"created_at":         s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":         s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func sessionFromRecord(rec *neo4j.Record) (domain.Session, error) {
	var s domain.Session
	raw, ok := rec.Values[0].(map[string]any)
	if !ok {
		return s, fmt.Errorf("unexpected record shape for session")
	}
	s.ID, _ = raw["id"].(string)
	s.Status = domain.SessionStatus(stringOf(raw["status"]))
	s.CurrentStage = stringOf(raw["current_stage"])
	if stagesJSON := stringOf(raw["stages"]); stagesJSON != "" {
		_ = json.Unmarshal([]byte(stagesJSON), &s.Stages)
	}
	if ids, ok := raw["item_ids"].([]any); ok {
		for _, id := range ids {
			s.ItemIDs = append(s.ItemIDs, stringOf(id))
		}
	}
	s.Progress = intOf(raw["progress"])
	s.ProgressTaskName = stringOf(raw["progress_task_name"])
	s.ProgressStatus = stringOf(raw["progress_status"])
	s.CreatedAt = timeOf(raw["created_at"])
	s.UpdatedAt = timeOf(raw["updated_at"])
	return s, nil
}

// Get loads a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	return s.repo.Get(ctx, id)
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	return s.repo.Create(ctx, session)
}

// Update writes a partial or full update to an existing session, via the
// generic repo's SET n += $props Cypher.
func (s *SessionStore) Update(ctx context.Context, session domain.Session) (domain.Session, error) {
	return s.repo.Update(ctx, session)
}

// SetStage merges one stage's output into the session's stages blob and
// advances current_stage, without requiring the caller to re-read and
// re-marshal the whole Stages map.
func (s *SessionStore) SetStage(ctx context.Context, sessionID, stageKey string, stageData any) error {
	payload, err := json.Marshal(stageData)
	if err != nil {
		return err
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	// Read-merge-write within one session rather than a server-side JSON
	// merge, since apoc isn't guaranteed available on every Neo4j install.
	getCypher := `MATCH (n:Session {id: $id}) RETURN n.stages AS stages`
	res, err := sess.Run(ctx, getCypher, map[string]any{"id": sessionID})
	if err != nil {
		return err
	}
	stages := map[string]json.RawMessage{}
	if res.Next(ctx) {
		if raw, _ := res.Record().Get("stages"); raw != nil {
			if str, ok := raw.(string); ok && str != "" {
				_ = json.Unmarshal([]byte(str), &stages)
			}
		}
	}
	stages[stageKey] = payload
	blob, err := json.Marshal(stages)
	if err != nil {
		return err
	}

	setCypher := `MATCH (n:Session {id: $id})
		SET n.stages = $stages, n.current_stage = $stage, n.updated_at = $now
		RETURN n`
	_, err = sess.Run(ctx, setCypher, map[string]any{
		"id":     sessionID,
		"stages": string(blob),
		"stage":  stageKey,
		"now":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	return err
}

// SetProgress records the latest progress percentage and task name
// directly via a scalar-field SET, so a late-connecting SSE observer's
// history replay (gateway.historyEnvelopes) has a snapshot to synthesize
// a historical progress_update from — without the sparse-struct overwrite
// risk Update carries (see sessionToMap).
func (s *SessionStore) SetProgress(ctx context.Context, sessionID, taskName, status string, progress int) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `MATCH (n:Session {id: $id})
		SET n.progress = $progress, n.progress_task_name = $task, n.progress_status = $status, n.updated_at = $now
		RETURN n`, map[string]any{
		"id":       sessionID,
		"progress": progress,
		"task":     taskName,
		"status":   status,
		"now":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	return err
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func timeOf(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
