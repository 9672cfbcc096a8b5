package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"scout/internal/config"
	"scout/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySourceDeactivated(context.Background(), "example", 5); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "source deactivated",
			notify: func(svc notifications.Service) error {
				return svc.NotifySourceDeactivated(context.Background(), "hn-frontpage", 5)
			},
			expectTitle:    "Scout - Source Deactivated",
			expectMessage:  "Source hn-frontpage deactivated after 5 consecutive failures",
			expectTags:     "scout,source,deactivated",
			expectPriority: "high",
		},
		{
			name: "item held",
			notify: func(svc notifications.Service) error {
				return svc.NotifyItemHeld(context.Background(), "Go 1.26 released", "flagged by advisory filter low-floor")
			},
			expectTitle:   "Scout - Review Needed",
			expectMessage: "Held for review: Go 1.26 released\nReason: flagged by advisory filter low-floor",
			expectTags:    "scout,review,hold",
		},
		{
			name: "item published",
			notify: func(svc notifications.Service) error {
				return svc.NotifyItemPublished(context.Background(), "Go 1.26 released")
			},
			expectTitle:   "Scout - Published",
			expectMessage: "Published: Go 1.26 released",
			expectTags:    "scout,publish,completed",
		},
		{
			name: "cycle error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyCycleError(context.Background(), "hn-frontpage", errors.New("feed returned status 503"))
			},
			expectTitle:   "Scout - Cycle Failed",
			expectMessage: "Check cycle failed for hn-frontpage: feed returned status 503",
			expectTags:    "scout,cycle,error",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("database locked"), "pipeline")
			},
			expectTitle:    "Scout - Error",
			expectMessage:  "Error with pipeline: database locked",
			expectTags:     "scout,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.SourceHealth = true
			cfg.Notifications.Review = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for muted category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.SourceHealth = false
	cfg.Notifications.Review = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	if err := svc.NotifySourceDeactivated(ctx, "muted", 5); err != nil {
		t.Fatalf("muted source-health notification errored: %v", err)
	}
	if err := svc.NotifyItemHeld(ctx, "muted", ""); err != nil {
		t.Fatalf("muted review notification errored: %v", err)
	}
	if err := svc.NotifyCycleError(ctx, "muted", errors.New("boom")); err != nil {
		t.Fatalf("muted error notification errored: %v", err)
	}
}
