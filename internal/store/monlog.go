package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendLog writes a monitoring log entry. Entries are append-only; there is
// deliberately no update or delete surface.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	if entry.Level == "" {
		entry.Level = "info"
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO monitoring_log (
            source_id, level, message, discovered, processed, filtered,
            duration_ms, error_code, error_details, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt64(entry.SourceID),
		entry.Level,
		entry.Message,
		entry.Discovered,
		entry.Processed,
		entry.Filtered,
		entry.Duration.Milliseconds(),
		nullableString(entry.ErrorCode),
		nullableString(entry.ErrorDetails),
		timestamp(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("append monitoring log: %w", err)
	}
	return nil
}

// RecentLog returns the newest monitoring log entries, newest first.
func (s *Store) RecentLog(ctx context.Context, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_id, level, message, discovered, processed, filtered,
                duration_ms, error_code, error_details, created_at
         FROM monitoring_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent monitoring log: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var (
			entry      LogEntry
			sourceID   sql.NullInt64
			durationMS int64
			errorCode  sql.NullString
			errorDet   sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &sourceID, &entry.Level, &entry.Message,
			&entry.Discovered, &entry.Processed, &entry.Filtered,
			&durationMS, &errorCode, &errorDet, &createdRaw,
		); err != nil {
			return nil, err
		}
		if sourceID.Valid {
			value := sourceID.Int64
			entry.SourceID = &value
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.ErrorCode = errorCode.String
		entry.ErrorDetails = errorDet.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
