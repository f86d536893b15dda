package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/menusense/pipeline/engine/domain"
)

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/health", nil)
	handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.CORSOrigin != "*" {
		t.Fatalf("expected default CORS *, got %s", cfg.CORSOrigin)
	}
	if cfg.Neo4jUser != "neo4j" {
		t.Fatalf("expected default neo4j user, got %s", cfg.Neo4jUser)
	}
}

func TestStatusForProcessError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"state error", &domain.StateError{Wrapped: domain.ErrDuplicateProcessing}, http.StatusBadRequest},
		{"validation error", domain.NewValidationError("session_id", "", domain.ErrEmptySessionID), http.StatusBadRequest},
		{"other error", domain.ErrItemNotFound, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForProcessError(tc.err); got != tc.want {
			t.Errorf("%s: statusForProcessError() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestErrorTypeForProcessError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"duplicate processing", &domain.StateError{Wrapped: domain.ErrDuplicateProcessing}, "duplicate_processing"},
		{"already completed", &domain.StateError{Wrapped: domain.ErrAlreadyCompleted}, "already_completed"},
		{"validation error", domain.NewValidationError("session_id", "", domain.ErrEmptySessionID), "validation_error"},
		{"other error", domain.ErrItemNotFound, "internal_error"},
	}
	for _, tc := range cases {
		if got := errorTypeForProcessError(tc.err); got != tc.want {
			t.Errorf("%s: errorTypeForProcessError() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestHandleProcessRequiresFile(t *testing.T) {
	handler := handleProcess(nil, nil, false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/pipeline/process", nil)
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleProcessRequiresSessionIDWhenFlagged(t *testing.T) {
	handler := handleProcess(nil, nil, true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/pipeline/process-with-session", nil)
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
