package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scout/internal/config"
	"scout/internal/fetch"
	"scout/internal/services"
	"scout/internal/store"
)

// Generator produces downstream content for an approved item and returns a
// reference to it.
type Generator interface {
	Generate(ctx context.Context, item *store.Item) (string, error)
}

// NewGenerator builds the configured generator. Without an endpoint the local
// draft generator is used, which produces a stable reference without leaving
// the process. When no client is supplied, the retrying client is used with
// the configured retry budget.
func NewGenerator(cfg *config.Config, client *http.Client) Generator {
	if cfg.Generation.Endpoint == "" {
		return draftGenerator{}
	}
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if client == nil {
		client = fetch.NewHTTPClient(fetch.WithMaxRetries(cfg.Generation.MaxRetries))
	}
	return &httpGenerator{
		endpoint: cfg.Generation.Endpoint,
		client:   client,
		timeout:  timeout,
	}
}

// httpGenerator delegates content generation to an external HTTP service.
type httpGenerator struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

type generateRequest struct {
	ItemID      int64    `json:"item_id"`
	Title       string   `json:"title"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"quality_score"`
}

type generateResponse struct {
	ContentRef string `json:"content_ref"`
}

func (g *httpGenerator) Generate(ctx context.Context, item *store.Item) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		ItemID:      item.ID,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Author:      item.Author,
		Tags:        item.Tags,
		Score:       item.QualityScore,
	})
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "pipeline", "generate", "invalid generation endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "pipeline", "generate", "generation request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", services.Wrap(services.ErrPermanent, "pipeline", "generate",
			fmt.Sprintf("generator rejected item with status %d", resp.StatusCode), nil)
	default:
		return "", services.Wrap(services.ErrTransient, "pipeline", "generate",
			fmt.Sprintf("generator returned status %d", resp.StatusCode), nil)
	}

	var decoded generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "pipeline", "generate", "decode generation response", err)
	}
	if decoded.ContentRef == "" {
		return "", services.Wrap(services.ErrPermanent, "pipeline", "generate", "generator returned no content reference", nil)
	}
	return decoded.ContentRef, nil
}

// draftGenerator records a local draft reference without calling out.
type draftGenerator struct{}

func (draftGenerator) Generate(_ context.Context, item *store.Item) (string, error) {
	return fmt.Sprintf("draft://items/%d", item.ID), nil
}
