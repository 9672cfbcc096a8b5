package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scout/internal/services"
)

// NewItem describes a normalized raw item ready for persistence.
type NewItem struct {
	SourceID    int64
	SourceType  string
	ExternalID  string
	URL         string
	Title       string
	Description string
	Author      string
	PublishedAt *time.Time
	ContentHash string
	Relevance   float64
	Engagement  float64
	Freshness   float64
	Tags        []string
}

// IngestResult reports what InsertDiscovered did with a raw item.
type IngestResult struct {
	Item *Item
	// Created is false when the item was a redelivery of an already-known
	// (sourceType, externalID) pair; nothing was written in that case.
	Created bool
}

// InsertDiscovered persists a raw item, deciding atomically whether it is an
// original or a duplicate of content seen within the rolling window.
//
// The decision is closed at the storage layer: originals occupy a slot in the
// partial unique index on (content_hash, hash_bucket), so a concurrent insert
// of the same content loses the race, detects the conflict, and lands as a
// duplicate pointing at the winner.
func (s *Store) InsertDiscovered(ctx context.Context, input NewItem, window time.Duration) (IngestResult, error) {
	if input.ExternalID == "" || input.SourceType == "" {
		return IngestResult{}, services.Wrap(services.ErrValidation, "store", "insert item", "source type and external id are required", nil)
	}
	if input.ContentHash == "" {
		return IngestResult{}, services.Wrap(services.ErrValidation, "store", "insert item", "content hash is required", nil)
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	now := time.Now().UTC()
	bucket := now.Unix() / int64(window.Seconds())

	var result IngestResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Redelivery from an at-least-once feed is an upsert no-op.
		existing, err := getItemBy(ctx, tx, `source_type = ? AND external_id = ?`, input.SourceType, input.ExternalID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = IngestResult{Item: existing, Created: false}
			return nil
		}

		windowStart := now.Add(-window)
		original, err := getItemBy(ctx, tx,
			`content_hash = ? AND is_duplicate = 0 AND discovered_at >= ?`,
			input.ContentHash, timestamp(windowStart),
		)
		if err != nil {
			return err
		}
		if original != nil {
			item, err := insertItemRow(ctx, tx, input, now, bucket, true, &original.ID)
			if err != nil {
				return err
			}
			result = IngestResult{Item: item, Created: true}
			return nil
		}

		item, err := insertItemRow(ctx, tx, input, now, bucket, false, nil)
		if err != nil {
			if !isUniqueViolation(err, "") {
				return err
			}
			// Lost the original slot to a concurrent writer.
			winner, lookupErr := getItemBy(ctx, tx,
				`content_hash = ? AND is_duplicate = 0 AND discovered_at >= ?`,
				input.ContentHash, timestamp(windowStart),
			)
			if lookupErr != nil {
				return lookupErr
			}
			if winner == nil {
				return fmt.Errorf("insert item: %w", err)
			}
			item, err = insertItemRow(ctx, tx, input, now, bucket, true, &winner.ID)
			if err != nil {
				return err
			}
			result = IngestResult{Item: item, Created: true}
			return nil
		}

		// Originals enter the pipeline immediately.
		if err := createRecordRow(ctx, tx, item.ID, now); err != nil {
			return err
		}
		result = IngestResult{Item: item, Created: true}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

func insertItemRow(ctx context.Context, tx *sql.Tx, input NewItem, now time.Time, bucket int64, duplicate bool, duplicateOf *int64) (*Item, error) {
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO items (
            source_id, source_type, external_id, url, title, description, author,
            published_at, discovered_at, content_hash, hash_bucket,
            relevance, engagement, freshness, quality_score,
            stage, is_duplicate, duplicate_of, tags, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		input.SourceID,
		input.SourceType,
		input.ExternalID,
		nullableString(input.URL),
		nullableString(input.Title),
		nullableString(input.Description),
		nullableString(input.Author),
		nullableTime(input.PublishedAt),
		timestamp(now),
		input.ContentHash,
		bucket,
		input.Relevance,
		input.Engagement,
		input.Freshness,
		StageDiscovered,
		boolToInt(duplicate),
		nullableInt64(duplicateOf),
		encodeTags(input.Tags),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return getItemBy(ctx, tx, `id = ?`, id)
}

// GetItemByID fetches an item by identifier.
func (s *Store) GetItemByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemsByStage returns non-duplicate items in a stage, oldest first.
func (s *Store) ItemsByStage(ctx context.Context, stage Stage, limit int) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE stage = ? AND is_duplicate = 0 ORDER BY discovered_at`
	args := []any{stage}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("items by stage: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListItems returns items filtered by stage set (or all items when no stage
// is provided), newest first.
func (s *Store) ListItems(ctx context.Context, limit int, stages ...Stage) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM items`
	orderClause := ` ORDER BY discovered_at DESC`
	var args []any

	if len(stages) > 0 {
		placeholders := makePlaceholders(len(stages))
		baseQuery += ` WHERE stage IN (` + placeholders + `)`
		for _, stage := range stages {
			args = append(args, stage)
		}
	}
	if limit > 0 {
		orderClause += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, baseQuery+orderClause, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// UpdateItemScores persists sub-scores and the derived quality score.
func (s *Store) UpdateItemScores(ctx context.Context, id int64, relevance, engagement, freshness, quality float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE items
         SET relevance = ?, engagement = ?, freshness = ?, quality_score = ?, updated_at = ?
         WHERE id = ?`,
		relevance, engagement, freshness, quality,
		timestamp(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update item scores: %w", err)
	}
	return nil
}

// ItemHealth aggregates item counts for diagnostic output.
func (s *Store) ItemHealth(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM items WHERE is_duplicate = 0 GROUP BY stage`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("item health: %w", err)
	}
	defer rows.Close()

	health := HealthSummary{}
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return HealthSummary{}, err
		}
		health.Total += count
		switch stage {
		case StageDiscovered, StageQualityCheck:
			health.Discovery += count
		case StageApproved:
			health.Approved += count
		case StageProcessing, StageGenerated, StageReviewed, StageFailed:
			health.InFlight += count
		case StageHoldForReview:
			health.Held += count
		case StageRejected:
			health.Rejected += count
		case StagePublished:
			health.Published += count
		}
	}
	return health, rows.Err()
}

// PurgeItems removes terminal items older than the cutoff. Explicit operator
// action; the pipeline itself never deletes.
func (s *Store) PurgeItems(ctx context.Context, cutoff time.Time, stages ...Stage) (int64, error) {
	if len(stages) == 0 {
		stages = []Stage{StageRejected, StagePublished}
	}
	for _, stage := range stages {
		if !stage.Terminal() {
			return 0, services.Wrap(services.ErrValidation, "store", "purge items",
				fmt.Sprintf("stage %s is not terminal", stage), nil)
		}
	}
	placeholders := makePlaceholders(len(stages))
	args := make([]any, 0, len(stages)+1)
	for _, stage := range stages {
		args = append(args, stage)
	}
	args = append(args, timestamp(cutoff))

	var affected int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM pipeline_records WHERE item_id IN (
                SELECT id FROM items WHERE stage IN (`+placeholders+`) AND discovered_at < ?)`,
			args...,
		); err != nil {
			return fmt.Errorf("purge records: %w", err)
		}
		res, err := tx.ExecContext(
			ctx,
			`DELETE FROM items WHERE stage IN (`+placeholders+`) AND discovered_at < ?`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("purge items: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func getItemBy(ctx context.Context, tx *sql.Tx, where string, args ...any) (*Item, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const itemColumns = "id, source_id, source_type, external_id, url, title, description, author, published_at, discovered_at, content_hash, hash_bucket, relevance, engagement, freshness, quality_score, stage, is_duplicate, duplicate_of, tags, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		sourceID     int64
		sourceType   string
		externalID   string
		url          sql.NullString
		title        sql.NullString
		description  sql.NullString
		author       sql.NullString
		publishedRaw sql.NullString
		discoveredAt sql.NullString
		contentHash  string
		hashBucket   int64
		relevance    float64
		engagement   float64
		freshness    float64
		qualityScore float64
		stageStr     string
		isDuplicate  int
		duplicateOf  sql.NullInt64
		tags         sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id, &sourceID, &sourceType, &externalID, &url, &title, &description, &author,
		&publishedRaw, &discoveredAt, &contentHash, &hashBucket,
		&relevance, &engagement, &freshness, &qualityScore,
		&stageStr, &isDuplicate, &duplicateOf, &tags, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		SourceID:     sourceID,
		SourceType:   sourceType,
		ExternalID:   externalID,
		URL:          url.String,
		Title:        title.String,
		Description:  description.String,
		Author:       author.String,
		PublishedAt:  parseNullableTime(publishedRaw),
		ContentHash:  contentHash,
		HashBucket:   hashBucket,
		Relevance:    relevance,
		Engagement:   engagement,
		Freshness:    freshness,
		QualityScore: qualityScore,
		Stage:        Stage(stageStr),
		IsDuplicate:  isDuplicate != 0,
		Tags:         decodeTags(tags),
	}
	if duplicateOf.Valid {
		value := duplicateOf.Int64
		item.DuplicateOf = &value
	}
	if discovered, err := parseTimeString(discoveredAt.String); err == nil {
		item.DiscoveredAt = discovered
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
