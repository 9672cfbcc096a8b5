package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scout/internal/services"
)

// ErrStageConflict is returned when a compare-and-set transition finds the
// record in a different stage than expected.
var ErrStageConflict = services.ErrConflict

func createRecordRow(ctx context.Context, tx *sql.Tx, itemID int64, now time.Time) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO pipeline_records (
            item_id, stage, discovered_at, processing_attempts,
            manual_review_required, auto_approved, created_at, updated_at
        ) VALUES (?, ?, ?, 0, 0, 0, ?, ?)`,
		itemID,
		StageDiscovered,
		timestamp(now),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		return fmt.Errorf("create pipeline record: %w", err)
	}
	return nil
}

// GetRecordByID fetches a pipeline record by identifier.
func (s *Store) GetRecordByID(ctx context.Context, id int64) (*PipelineRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM pipeline_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// GetRecordByItem fetches the pipeline record owning an item.
func (s *Store) GetRecordByItem(ctx context.Context, itemID int64) (*PipelineRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM pipeline_records WHERE item_id = ?`, itemID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record by item: %w", err)
	}
	return record, nil
}

// NextRecordForStages returns the oldest record in any of the given stages.
func (s *Store) NextRecordForStages(ctx context.Context, stages ...Stage) (*PipelineRecord, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(stages))
	args := make([]any, len(stages))
	for i, stage := range stages {
		args[i] = stage
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM pipeline_records WHERE stage IN (`+placeholders+`) ORDER BY updated_at LIMIT 1`,
		args...,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next record: %w", err)
	}
	return record, nil
}

// RecordsByStage lists records in a stage, oldest first.
func (s *Store) RecordsByStage(ctx context.Context, stage Stage, limit int) ([]*PipelineRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM pipeline_records WHERE stage = ? ORDER BY updated_at`
	args := []any{stage}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records by stage: %w", err)
	}
	defer rows.Close()

	var records []*PipelineRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// recordMutation describes the column updates applied alongside a stage CAS.
type recordMutation struct {
	set  string
	args []any
}

// transitionRecord performs the compare-and-set stage change and mirrors the
// new stage onto the owning item in the same transaction. Callers validate
// the transition against the stage graph first; a CAS miss here means a
// concurrent writer moved the record.
func (s *Store) transitionRecord(ctx context.Context, id int64, from, to Stage, mutation recordMutation) error {
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		set := `stage = ?, updated_at = ?`
		args := []any{to, timestamp(now)}
		if mutation.set != "" {
			set += ", " + mutation.set
			args = append(args, mutation.args...)
		}
		args = append(args, id, from)

		res, err := tx.ExecContext(
			ctx,
			`UPDATE pipeline_records SET `+set+` WHERE id = ? AND stage = ?`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("transition record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrConflict, "store", "transition record",
				fmt.Sprintf("record %d is not in stage %s", id, from), nil)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE items SET stage = ?, updated_at = ?
             WHERE id = (SELECT item_id FROM pipeline_records WHERE id = ?)`,
			to, timestamp(now), id,
		); err != nil {
			return fmt.Errorf("mirror item stage: %w", err)
		}
		return nil
	})
}

// BeginQualityCheck moves a freshly discovered record into quality check.
func (s *Store) BeginQualityCheck(ctx context.Context, id int64) error {
	return s.transitionRecord(ctx, id, StageDiscovered, StageQualityCheck, recordMutation{})
}

// RecordVerdict applies the filter chain outcome to a record in quality
// check. verdict must be approved, rejected, or hold_for_review.
func (s *Store) RecordVerdict(ctx context.Context, id int64, verdict Stage, filterName string, autoApproved bool) error {
	now := time.Now().UTC()
	mutation := recordMutation{
		set: `quality_checked_at = ?, verdict_filter = ?, auto_approved = ?, manual_review_required = ?`,
		args: []any{
			timestamp(now),
			nullableString(filterName),
			boolToInt(autoApproved),
			boolToInt(verdict == StageHoldForReview),
		},
	}
	return s.transitionRecord(ctx, id, StageQualityCheck, verdict, mutation)
}

// BeginProcessing hands a record to generation. from is approved for the
// first attempt and failed for retries; processing_attempts counts handoffs.
func (s *Store) BeginProcessing(ctx context.Context, id int64, from Stage) error {
	now := time.Now().UTC()
	mutation := recordMutation{
		set:  `processing_attempts = processing_attempts + 1, generation_started_at = ?`,
		args: []any{timestamp(now)},
	}
	return s.transitionRecord(ctx, id, from, StageProcessing, mutation)
}

// CompleteGeneration records a successful generation run.
func (s *Store) CompleteGeneration(ctx context.Context, id int64, contentRef string) error {
	now := time.Now().UTC()
	mutation := recordMutation{
		set:  `generation_completed_at = ?, content_ref = ?`,
		args: []any{timestamp(now), nullableString(contentRef)},
	}
	return s.transitionRecord(ctx, id, StageProcessing, StageGenerated, mutation)
}

// FailGeneration records a failed generation run.
func (s *Store) FailGeneration(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC()
	mutation := recordMutation{
		set:  `last_error = ?, last_error_at = ?`,
		args: []any{nullableString(message), timestamp(now)},
	}
	return s.transitionRecord(ctx, id, StageProcessing, StageFailed, mutation)
}

// EscalateToReview moves a record whose retry budget is exhausted to manual
// review.
func (s *Store) EscalateToReview(ctx context.Context, id int64, reason string) error {
	mutation := recordMutation{
		set:  `manual_review_required = 1, last_error = ?`,
		args: []any{nullableString(reason)},
	}
	return s.transitionRecord(ctx, id, StageFailed, StageHoldForReview, mutation)
}

// MarkReviewed records the external review signal.
func (s *Store) MarkReviewed(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	mutation := recordMutation{
		set:  `reviewed_at = ?`,
		args: []any{timestamp(now)},
	}
	return s.transitionRecord(ctx, id, StageGenerated, StageReviewed, mutation)
}

// MarkPublished records the external publish signal.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	mutation := recordMutation{
		set:  `published_at = ?`,
		args: []any{timestamp(now)},
	}
	return s.transitionRecord(ctx, id, StageReviewed, StagePublished, mutation)
}

// ReDriveHeld returns a held record to approved with a fresh retry budget.
// Operator action only.
func (s *Store) ReDriveHeld(ctx context.Context, id int64) error {
	mutation := recordMutation{
		set:  `manual_review_required = 0, processing_attempts = 0`,
		args: nil,
	}
	return s.transitionRecord(ctx, id, StageHoldForReview, StageApproved, mutation)
}

// ReclaimStaleProcessing returns records stuck in processing past the cutoff
// to approved so they are retried. The interrupted attempt keeps its slot in
// processing_attempts.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	var affected int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE pipeline_records
             SET stage = ?, updated_at = ?
             WHERE stage = ? AND updated_at < ?`,
			StageApproved,
			timestamp(now),
			StageProcessing,
			timestamp(cutoff),
		)
		if err != nil {
			return fmt.Errorf("reclaim stale records: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE items SET stage = ?, updated_at = ?
                 WHERE stage = ? AND id IN (SELECT item_id FROM pipeline_records WHERE stage = ?)`,
				StageApproved, timestamp(now), StageProcessing, StageApproved,
			); err != nil {
				return fmt.Errorf("mirror reclaimed item stages: %w", err)
			}
		}
		return nil
	})
	return affected, err
}

const recordColumns = "id, item_id, stage, discovered_at, quality_checked_at, generation_started_at, generation_completed_at, reviewed_at, published_at, processing_attempts, last_error, last_error_at, manual_review_required, auto_approved, verdict_filter, content_ref, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*PipelineRecord, error) {
	var (
		id             int64
		itemID         int64
		stageStr       string
		discoveredRaw  sql.NullString
		qualityRaw     sql.NullString
		genStartedRaw  sql.NullString
		genDoneRaw     sql.NullString
		reviewedRaw    sql.NullString
		publishedRaw   sql.NullString
		attempts       int
		lastError      sql.NullString
		lastErrorRaw   sql.NullString
		manualReview   int
		autoApproved   int
		verdictFilter  sql.NullString
		contentRef     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id, &itemID, &stageStr, &discoveredRaw, &qualityRaw,
		&genStartedRaw, &genDoneRaw, &reviewedRaw, &publishedRaw,
		&attempts, &lastError, &lastErrorRaw, &manualReview, &autoApproved,
		&verdictFilter, &contentRef, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &PipelineRecord{
		ID:                    id,
		ItemID:                itemID,
		Stage:                 Stage(stageStr),
		QualityCheckedAt:      parseNullableTime(qualityRaw),
		GenerationStartedAt:   parseNullableTime(genStartedRaw),
		GenerationCompletedAt: parseNullableTime(genDoneRaw),
		ReviewedAt:            parseNullableTime(reviewedRaw),
		PublishedAt:           parseNullableTime(publishedRaw),
		ProcessingAttempts:    attempts,
		LastError:             lastError.String,
		LastErrorAt:           parseNullableTime(lastErrorRaw),
		ManualReviewRequired:  manualReview != 0,
		AutoApproved:          autoApproved != 0,
		VerdictFilter:         verdictFilter.String,
		ContentRef:            contentRef.String,
	}
	if discovered, err := parseTimeString(discoveredRaw.String); err == nil {
		record.DiscoveredAt = discovered
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
