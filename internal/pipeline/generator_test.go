package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"scout/internal/config"
	"scout/internal/pipeline"
	"scout/internal/services"
	"scout/internal/store"
)

func TestGeneratorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"content_ref": "s3://drafts/42"})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Generation.Endpoint = server.URL
	cfg.Generation.MaxRetries = 2

	// A nil client falls back to the retrying HTTP client, so a single
	// server error must not surface to the caller.
	generator := pipeline.NewGenerator(&cfg, nil)
	ref, err := generator.Generate(context.Background(), &store.Item{ID: 42, Title: "Go 1.26 released"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ref != "s3://drafts/42" {
		t.Fatalf("unexpected content ref %q", ref)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry after the server error, got %d calls", calls.Load())
	}
}

func TestGeneratorDoesNotRetryRejection(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Generation.Endpoint = server.URL
	cfg.Generation.MaxRetries = 2

	generator := pipeline.NewGenerator(&cfg, nil)
	_, err := generator.Generate(context.Background(), &store.Item{ID: 7, Title: "rejected"})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error for 400, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}
