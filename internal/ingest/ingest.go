// Package ingest turns raw fetched items into persisted canonical items,
// applying normalization and content-hash deduplication on the way in.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"scout/internal/config"
	"scout/internal/fetch"
	"scout/internal/logging"
	"scout/internal/store"
)

// Stats summarizes one ingested batch for the monitoring log.
type Stats struct {
	Discovered int
	Duplicates int
	Skipped    int
}

// Ingestor persists raw items for the scheduler.
type Ingestor struct {
	store  *store.Store
	logger *slog.Logger
	window time.Duration

	// seen caches (sourceType, externalID) pairs recently handled so
	// redeliveries from chatty feeds skip the database entirely. The store
	// remains the authority; a cache miss just costs one transaction.
	seen *expirable.LRU[string, struct{}]

	defaultRelevance  float64
	defaultEngagement float64
}

// New builds an Ingestor from configuration.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger) *Ingestor {
	cacheSize := cfg.Ingest.HashCacheSize
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cacheTTL := time.Duration(cfg.Ingest.HashCacheTTL) * time.Second
	return &Ingestor{
		store:             st,
		logger:            logging.NewComponentLogger(logger, "ingest"),
		window:            time.Duration(cfg.Ingest.DedupWindowDays) * 24 * time.Hour,
		seen:              expirable.NewLRU[string, struct{}](cacheSize, nil, cacheTTL),
		defaultRelevance:  cfg.Ingest.DefaultRelevance,
		defaultEngagement: cfg.Ingest.DefaultEngagement,
	}
}

// IngestBatch persists one fetch cycle's worth of raw items. Items that fail
// validation are skipped and logged; one bad entry never fails the batch.
func (i *Ingestor) IngestBatch(ctx context.Context, source *store.Source, rawItems []fetch.RawItem) (Stats, error) {
	var stats Stats
	for _, raw := range rawItems {
		if raw.ExternalID == "" {
			stats.Skipped++
			continue
		}
		cacheKey := source.Type + "\x00" + raw.ExternalID
		if _, ok := i.seen.Get(cacheKey); ok {
			stats.Skipped++
			continue
		}

		input, ok := i.buildItem(source, raw)
		if !ok {
			stats.Skipped++
			i.logger.Warn("skipping item with out-of-range sub-scores",
				logging.String(logging.FieldSourceName, source.Name),
				logging.String("external_id", raw.ExternalID))
			continue
		}

		result, err := i.store.InsertDiscovered(ctx, input, i.window)
		if err != nil {
			return stats, err
		}
		i.seen.Add(cacheKey, struct{}{})

		switch {
		case !result.Created:
			stats.Skipped++
		case result.Item.IsDuplicate:
			stats.Duplicates++
			i.logger.Debug("duplicate content detected",
				logging.String(logging.FieldSourceName, source.Name),
				logging.Int64(logging.FieldItemID, result.Item.ID),
				logging.Int64("duplicate_of", *result.Item.DuplicateOf))
		default:
			stats.Discovered++
			i.logger.Info("item discovered",
				logging.String(logging.FieldSourceName, source.Name),
				logging.Int64(logging.FieldItemID, result.Item.ID),
				logging.String("title", result.Item.Title))
		}
	}
	return stats, nil
}

func (i *Ingestor) buildItem(source *store.Source, raw fetch.RawItem) (store.NewItem, bool) {
	// Defaults apply only when the adapter reports no signal at all. A real
	// zero stays zero; inflating it would let irrelevant items clear score
	// filters.
	relevance := i.defaultRelevance
	if raw.Relevance != nil {
		relevance = *raw.Relevance
	}
	engagement := i.defaultEngagement
	if raw.Engagement != nil {
		engagement = *raw.Engagement
	}

	for _, score := range []float64{relevance, engagement, raw.Freshness} {
		if score < 0 || score > 1 {
			return store.NewItem{}, false
		}
	}

	return store.NewItem{
		SourceID:    source.ID,
		SourceType:  source.Type,
		ExternalID:  raw.ExternalID,
		URL:         raw.URL,
		Title:       raw.Title,
		Description: raw.Description,
		Author:      raw.Author,
		PublishedAt: raw.PublishedAt,
		ContentHash: Fingerprint(raw.Title, raw.Description, raw.URL),
		Relevance:   relevance,
		Engagement:  engagement,
		Freshness:   raw.Freshness,
		Tags:        raw.Tags,
	}, true
}
