// Package main implements the pipeline API server: upload intake,
// session status, and the SSE event stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/engine/pipeline"
	"github.com/menusense/pipeline/engine/pipeline/events"
	"github.com/menusense/pipeline/engine/pipeline/gateway"
	"github.com/menusense/pipeline/engine/pipeline/provider"
	"github.com/menusense/pipeline/engine/pipeline/store"
	"github.com/menusense/pipeline/pkg/metrics"
	"github.com/menusense/pipeline/pkg/mid"
)

// Config holds all environment-based configuration, following
// cmd/api/main.go's loadConfig/envOr pattern.
type Config struct {
	Port        string
	MLWorkerURL string
	NatsURL     string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	CORSOrigin  string
}

func loadConfig() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		MLWorkerURL: envOr("ML_WORKER_URL", "localhost:50051"),
		NatsURL:     envOr("NATS_URL", nats.DefaultURL),
		Neo4jURL:    envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	mlConn, err := grpc.NewClient(cfg.MLWorkerURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial ml-worker: %w", err)
	}
	defer mlConn.Close()

	sessions := store.NewSessionStore(neo4jDriver)
	items := store.NewItemStore(neo4jDriver)

	gw := gateway.New(nc, sessions, logger)
	publisher := events.NewPublisher(nc, gw)
	gw.SetPublisher(publisher)

	coordinator := &pipeline.Coordinator{
		Sessions:    sessions,
		Items:       items,
		Publisher:   publisher,
		OCR:         &provider.GRPCOCR{Conn: mlConn},
		Categorizer: &provider.GRPCCategorizer{Conn: mlConn},
		NC:          nc,
	}

	reg := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /pipeline/process", handleProcess(coordinator, logger, false))
	mux.HandleFunc("POST /pipeline/process-with-session", handleProcess(coordinator, logger, true))
	mux.HandleFunc("GET /pipeline/session/{session_id}/status", handleSessionStatus(sessions, logger))
	mux.HandleFunc("GET /sse/stream/{session_id}", gw.HandleStream)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pipeline-api starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ProcessResponse is the JSON response for the process endpoints.
type ProcessResponse struct {
	SessionID              string   `json:"session_id"`
	StreamURL              string   `json:"stream_url"`
	OCRElementCount        int      `json:"ocr_element_count"`
	Categories             []string `json:"categories"`
	MenuItemsSaved         int      `json:"menu_items_saved"`
	ParallelTasksTriggered bool     `json:"parallel_tasks_triggered"`
	ProcessingTimeSeconds  float64  `json:"processing_time_seconds"`
}

// handleProcess serves both upload endpoints: /pipeline/process allocates
// a fresh session ID server-side, while /pipeline/process-with-session
// (requireSessionID) takes the caller's session_id query parameter and
// runs the duplicate-submission guard against it, per spec.md §4's two
// upload entry points.
func handleProcess(coordinator *pipeline.Coordinator, logger *slog.Logger, requireSessionID bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if requireSessionID && sessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			if t := mime.TypeByExtension(header.Filename); t != "" {
				contentType = t
			}
		}

		imageBytes := make([]byte, header.Size)
		if _, err := file.Read(imageBytes); err != nil {
			writeJSONError(w, http.StatusBadRequest, "could not read image")
			return
		}

		if err := domain.ValidateUpload(sessionID, imageBytes, contentType); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		result := coordinator.Process(r.Context(), sessionID, imageBytes, header.Filename)
		outcome, err := result.Unwrap()
		if err != nil {
			logger.Error("pipeline process failed", "session_id", sessionID, "err", err)
			writeJSONErrorTyped(w, statusForProcessError(err), err.Error(), errorTypeForProcessError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ProcessResponse{
			SessionID:              outcome.SessionID,
			StreamURL:              "/sse/stream/" + outcome.SessionID,
			OCRElementCount:        outcome.OCRElementCount,
			Categories:             outcome.Categories,
			MenuItemsSaved:         len(outcome.SavedItems),
			ParallelTasksTriggered: outcome.ParallelTasksTriggered,
			ProcessingTimeSeconds:  outcome.ProcessingTime.Seconds(),
		})
	}
}

// statusForProcessError maps a Process error to an HTTP status.
// Duplicate-submission rejections surface as 400, not 409: spec.md's
// documented contract for this endpoint is "HTTP 400 with error_type:
// duplicate_processing or already_completed", not a conflict status.
func statusForProcessError(err error) int {
	var stateErr *domain.StateError
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &stateErr):
		return http.StatusBadRequest
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorTypeForProcessError reports the machine-readable error_type the
// response body carries alongside the human-readable message.
// StateError's sentinel text is already the exact literal spec.md names
// (domain.ErrDuplicateProcessing.Error() == "duplicate_processing", etc).
func errorTypeForProcessError(err error) string {
	var stateErr *domain.StateError
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &stateErr):
		return stateErr.Wrapped.Error()
	case errors.As(err, &validationErr):
		return "validation_error"
	default:
		return "internal_error"
	}
}

func handleSessionStatus(sessions *store.SessionStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("session_id")
		session, err := sessions.Get(r.Context(), sessionID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
	}
}

// errorResponse is the JSON body for every error response. ErrorType is
// the machine-readable tag spec.md's duplicate-submission contract calls
// for; other error paths leave it empty.
type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONErrorTyped(w, status, message, "")
}

func writeJSONErrorTyped(w http.ResponseWriter, status int, message, errorType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, ErrorType: errorType})
}
