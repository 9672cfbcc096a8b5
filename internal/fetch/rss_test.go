package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scout/internal/fetch"
	"scout/internal/services"
	"scout/internal/store"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <item>
      <guid>https://example.com/posts/1</guid>
      <link>https://example.com/posts/1</link>
      <title>Go 1.26 released</title>
      <description>The Go team announced the release of Go 1.26 with faster builds.</description>
      <author>alex@example.com</author>
      <pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate>
      <category>golang</category>
    </item>
    <item>
      <link>https://example.com/posts/2</link>
      <title>Unrelated gardening tips</title>
      <description>Water your plants.</description>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Feed</title>
  <entry>
    <id>urn:uuid:entry-1</id>
    <title>Atom entry</title>
    <link rel="alternate" href="https://example.com/atom/1"/>
    <summary>An atom entry about releases.</summary>
    <author><name>Sam</name></author>
    <updated>2026-08-25T12:00:00Z</updated>
    <category term="news"/>
  </entry>
</feed>`

func feedSource(url, adapterConfig string) *store.Source {
	return &store.Source{
		ID:            1,
		Type:          "rss",
		Name:          "example",
		BaseURL:       url,
		AdapterConfig: adapterConfig,
	}
}

func TestRSSAdapterParsesFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	adapter := fetch.NewRSSAdapter(server.Client())
	items, err := adapter.Fetch(context.Background(), feedSource(server.URL, `{"keywords":["go","release"]}`))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ExternalID != "https://example.com/posts/1" {
		t.Fatalf("unexpected external id %q", first.ExternalID)
	}
	if first.Title != "Go 1.26 released" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.PublishedAt == nil {
		t.Fatal("expected published time to be parsed")
	}
	if first.Relevance == nil || *first.Relevance != 1.0 {
		t.Fatalf("both keywords match, expected relevance 1.0, got %v", first.Relevance)
	}
	if first.Freshness < 0 || first.Freshness > 1 {
		t.Fatalf("freshness %v outside [0, 1]", first.Freshness)
	}

	second := items[1]
	if second.ExternalID != "https://example.com/posts/2" {
		t.Fatalf("expected link fallback for missing guid, got %q", second.ExternalID)
	}
	if second.Relevance == nil || *second.Relevance != 0 {
		t.Fatalf("no keywords match, expected relevance 0, got %v", second.Relevance)
	}
	if second.Freshness != 0.5 {
		t.Fatalf("missing date must score neutral freshness, got %v", second.Freshness)
	}
}

func TestRSSAdapterParsesAtom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFixture))
	}))
	defer server.Close()

	adapter := fetch.NewRSSAdapter(server.Client())
	items, err := adapter.Fetch(context.Background(), feedSource(server.URL, ""))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.ExternalID != "urn:uuid:entry-1" {
		t.Fatalf("unexpected external id %q", item.ExternalID)
	}
	if item.URL != "https://example.com/atom/1" {
		t.Fatalf("unexpected link %q", item.URL)
	}
	if item.Author != "Sam" {
		t.Fatalf("unexpected author %q", item.Author)
	}
	if item.PublishedAt == nil {
		t.Fatal("expected updated time used as published fallback")
	}
}

func TestRSSAdapterClassifiesMissingFeedAsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	adapter := fetch.NewRSSAdapter(server.Client())
	_, err := adapter.Fetch(context.Background(), feedSource(server.URL, ""))
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error for 404, got %v", err)
	}
}

func TestRSSAdapterClassifiesServerErrorAsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := fetch.NewRSSAdapter(server.Client())
	_, err := adapter.Fetch(context.Background(), feedSource(server.URL, ""))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error for 500, got %v", err)
	}
}

func TestRSSAdapterRejectsMissingURL(t *testing.T) {
	adapter := fetch.NewRSSAdapter(&http.Client{Timeout: time.Second})
	_, err := adapter.Fetch(context.Background(), feedSource("", ""))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRegistryResolvesByType(t *testing.T) {
	registry := fetch.NewRegistry()
	adapter := fetch.NewRSSAdapter(&http.Client{})
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(adapter); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}

	resolved, err := registry.Resolve("rss")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Type() != "rss" {
		t.Fatalf("unexpected adapter type %q", resolved.Type())
	}
	if _, err := registry.Resolve("unknown"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown type, got %v", err)
	}
}
