package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"scout/internal/services"
	"scout/internal/store"
)

const (
	maxFeedBytes    = 8 << 20
	defaultMaxItems = 50
	freshnessWindow = 7 * 24 * time.Hour
)

// rssConfig is the adapter_config shape for RSS sources.
type rssConfig struct {
	// Keywords drive the relevance sub-score: the fraction of configured
	// keywords found in an entry's title or description.
	Keywords []string `json:"keywords"`
	MaxItems int      `json:"max_items"`
}

// RSSAdapter polls RSS 2.0 and Atom feeds.
type RSSAdapter struct {
	client *http.Client
	now    func() time.Time
}

// NewRSSAdapter builds the feed adapter around the given HTTP client.
func NewRSSAdapter(client *http.Client) *RSSAdapter {
	return &RSSAdapter{client: client, now: time.Now}
}

// Type implements Adapter.
func (a *RSSAdapter) Type() string {
	return "rss"
}

// Fetch implements Adapter.
func (a *RSSAdapter) Fetch(ctx context.Context, source *store.Source) ([]RawItem, error) {
	if source.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "rss fetch",
			fmt.Sprintf("source %s/%s has no feed URL", source.Type, source.Name), nil)
	}
	cfg := rssConfig{MaxItems: defaultMaxItems}
	if source.AdapterConfig != "" {
		if err := json.Unmarshal([]byte(source.AdapterConfig), &cfg); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "fetch", "rss fetch", "invalid adapter config", err)
		}
		if cfg.MaxItems <= 0 {
			cfg.MaxItems = defaultMaxItems
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.BaseURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "rss fetch", "invalid feed URL", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")
	req.Header.Set("User-Agent", "scout/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "fetch", "rss fetch", "feed request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrPermanent, "fetch", "rss fetch",
			fmt.Sprintf("feed returned status %d", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrTransient, "fetch", "rss fetch",
			fmt.Sprintf("feed returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "fetch", "rss fetch", "read feed body", err)
	}

	entries, err := parseFeed(body)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "fetch", "rss fetch", "parse feed", err)
	}
	if len(entries) > cfg.MaxItems {
		entries = entries[:cfg.MaxItems]
	}

	now := a.now().UTC()
	items := make([]RawItem, 0, len(entries))
	for _, entry := range entries {
		item := RawItem{
			ExternalID:  entry.externalID(),
			URL:         entry.Link,
			Title:       strings.TrimSpace(entry.Title),
			Description: strings.TrimSpace(entry.Description),
			Author:      strings.TrimSpace(entry.Author),
			Tags:        entry.Categories,
		}
		if item.ExternalID == "" {
			continue
		}
		if published := entry.publishedTime(); published != nil {
			utc := published.UTC()
			item.PublishedAt = &utc
		}
		item.Relevance = Score(keywordRelevance(cfg.Keywords, item.Title+" "+item.Description))
		item.Engagement = Score(entryEngagement(entry))
		item.Freshness = freshness(item.PublishedAt, now)
		items = append(items, item)
	}
	return items, nil
}

type feedEntry struct {
	GUID        string
	Link        string
	Title       string
	Description string
	Author      string
	Published   string
	Categories  []string
}

func (e feedEntry) externalID() string {
	if id := strings.TrimSpace(e.GUID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Link)
}

func (e feedEntry) publishedTime() *time.Time {
	raw := strings.TrimSpace(e.Published)
	if raw == "" {
		return nil
	}
	// Feeds are wildly inconsistent about date formats.
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	return &t
}

type rssDocument struct {
	Channel struct {
		Items []struct {
			GUID        string   `xml:"guid"`
			Link        string   `xml:"link"`
			Title       string   `xml:"title"`
			Description string   `xml:"description"`
			Author      string   `xml:"author"`
			Creator     string   `xml:"creator"`
			PubDate     string   `xml:"pubDate"`
			Categories  []string `xml:"category"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDocument struct {
	Entries []struct {
		ID    string `xml:"id"`
		Title string `xml:"title"`
		Links []struct {
			Rel  string `xml:"rel,attr"`
			Href string `xml:"href,attr"`
		} `xml:"link"`
		Summary string `xml:"summary"`
		Content string `xml:"content"`
		Author  struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Published  string `xml:"published"`
		Updated    string `xml:"updated"`
		Categories []struct {
			Term string `xml:"term,attr"`
		} `xml:"category"`
	} `xml:"entry"`
}

func parseFeed(data []byte) ([]feedEntry, error) {
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("probe feed root: %w", err)
	}

	switch probe.XMLName.Local {
	case "rss", "RDF":
		var doc rssDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode rss feed: %w", err)
		}
		entries := make([]feedEntry, 0, len(doc.Channel.Items))
		for _, item := range doc.Channel.Items {
			author := item.Author
			if author == "" {
				author = item.Creator
			}
			entries = append(entries, feedEntry{
				GUID:        item.GUID,
				Link:        item.Link,
				Title:       item.Title,
				Description: item.Description,
				Author:      author,
				Published:   item.PubDate,
				Categories:  item.Categories,
			})
		}
		return entries, nil
	case "feed":
		var doc atomDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode atom feed: %w", err)
		}
		entries := make([]feedEntry, 0, len(doc.Entries))
		for _, entry := range doc.Entries {
			link := ""
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			description := entry.Summary
			if description == "" {
				description = entry.Content
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			var categories []string
			for _, c := range entry.Categories {
				if c.Term != "" {
					categories = append(categories, c.Term)
				}
			}
			entries = append(entries, feedEntry{
				GUID:        entry.ID,
				Link:        link,
				Title:       entry.Title,
				Description: description,
				Author:      entry.Author.Name,
				Published:   published,
				Categories:  categories,
			})
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unsupported feed root element %q", probe.XMLName.Local)
	}
}

// keywordRelevance scores how many configured keywords appear in the text.
// Sources without keywords get a neutral 0.5.
func keywordRelevance(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}
	lowered := strings.ToLower(text)
	hits := 0
	for _, keyword := range keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword == "" {
			continue
		}
		if strings.Contains(lowered, keyword) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// entryEngagement estimates engagement from feed metadata. Feeds carry no
// real engagement signal, so this rewards entries with richer metadata.
func entryEngagement(entry feedEntry) float64 {
	score := 0.4
	if entry.Author != "" {
		score += 0.2
	}
	if len(entry.Categories) > 0 {
		score += 0.2
	}
	if len(entry.Description) >= 200 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// freshness decays linearly from 1 at publication to 0 at the window edge.
// Entries without a date get a neutral 0.5.
func freshness(published *time.Time, now time.Time) float64 {
	if published == nil {
		return 0.5
	}
	age := now.Sub(*published)
	if age <= 0 {
		return 1
	}
	if age >= freshnessWindow {
		return 0
	}
	return 1 - age.Seconds()/freshnessWindow.Seconds()
}
