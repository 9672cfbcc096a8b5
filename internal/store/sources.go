package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scout/internal/services"
)

// NewSource describes a source to register.
type NewSource struct {
	Type             string
	Name             string
	BaseURL          string
	AdapterConfig    string
	CheckFrequency   time.Duration
	Weight           float64
	RateLimitPerHour int64
}

// CreateSource registers a monitoring source. The first check is due
// immediately.
func (s *Store) CreateSource(ctx context.Context, input NewSource) (*Source, error) {
	if input.Type == "" || input.Name == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create source", "source type and name are required", nil)
	}
	if input.CheckFrequency <= 0 {
		return nil, services.Wrap(services.ErrValidation, "store", "create source", "check frequency must be positive", nil)
	}
	if input.Weight == 0 {
		input.Weight = 1.0
	}
	if input.Weight < 0 || input.Weight > 2 {
		return nil, services.Wrap(services.ErrValidation, "store", "create source", "weight must be between 0 and 2", nil)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sources (
            source_type, source_name, base_url, adapter_config,
            check_frequency_seconds, weight, rate_limit_per_hour,
            next_check_at, active, consecutive_failures, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		input.Type,
		input.Name,
		nullableString(input.BaseURL),
		nullableString(input.AdapterConfig),
		int64(input.CheckFrequency.Seconds()),
		input.Weight,
		input.RateLimitPerHour,
		timestamp(now),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		if isUniqueViolation(err, "source_name") {
			return nil, services.Wrap(services.ErrConflict, "store", "create source",
				fmt.Sprintf("source %s/%s already exists", input.Type, input.Name), err)
		}
		return nil, fmt.Errorf("insert source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSourceByID(ctx, id)
}

// GetSourceByID fetches a source by identifier.
func (s *Store) GetSourceByID(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return source, nil
}

// GetSourceByName fetches a source by its unique (type, name) identity.
func (s *Store) GetSourceByName(ctx context.Context, sourceType, name string) (*Source, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE source_type = ? AND source_name = ?`,
		sourceType, name,
	)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source by name: %w", err)
	}
	return source, nil
}

// ListSources returns all sources ordered by type then name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY source_type, source_name`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// DueSources returns active sources whose next check time has passed, oldest
// first.
func (s *Store) DueSources(ctx context.Context, now time.Time) ([]*Source, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sourceColumns+` FROM sources
         WHERE active = 1 AND next_check_at <= ?
         ORDER BY next_check_at`,
		timestamp(now),
	)
	if err != nil {
		return nil, fmt.Errorf("due sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// MarkSourceChecked records a successful fetch cycle: the failure counter
// resets and the next check is scheduled one frequency ahead.
func (s *Store) MarkSourceChecked(ctx context.Context, id int64, now time.Time) error {
	next := now.Add(s.sourceFrequency(ctx, id))
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sources
         SET last_checked_at = ?, next_check_at = ?, consecutive_failures = 0, updated_at = ?
         WHERE id = ?`,
		timestamp(now),
		timestamp(next),
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark source checked: %w", err)
	}
	return nil
}

// MarkSourceFailed records a failed fetch cycle. The caller supplies the
// backed-off next check time; deactivate disables further scheduling once the
// failure threshold is crossed.
func (s *Store) MarkSourceFailed(ctx context.Context, id int64, now, next time.Time, deactivate bool) (*Source, error) {
	if next.Before(now) {
		return nil, services.Wrap(services.ErrInvariant, "store", "mark source failed", "next check must not be in the past", nil)
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sources
         SET last_checked_at = ?, next_check_at = ?, consecutive_failures = consecutive_failures + 1,
             active = CASE WHEN ? THEN 0 ELSE active END, updated_at = ?
         WHERE id = ?`,
		timestamp(now),
		timestamp(next),
		boolToInt(deactivate),
		timestamp(now),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("mark source failed: %w", err)
	}
	return s.GetSourceByID(ctx, id)
}

// PostponeSource advances the next check without touching the failure
// counter. Used when a cycle is skipped (rate-limit budget exhausted).
func (s *Store) PostponeSource(ctx context.Context, id int64, next time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sources SET next_check_at = ?, updated_at = ? WHERE id = ?`,
		timestamp(next),
		timestamp(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("postpone source: %w", err)
	}
	return nil
}

// SetSourceActive activates or deactivates a source. Activation also resets
// the failure counter and makes the source immediately due.
func (s *Store) SetSourceActive(ctx context.Context, id int64, active bool) error {
	now := time.Now().UTC()
	var err error
	if active {
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE sources
             SET active = 1, consecutive_failures = 0, next_check_at = ?, updated_at = ?
             WHERE id = ?`,
			timestamp(now),
			timestamp(now),
			id,
		)
	} else {
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE sources SET active = 0, updated_at = ? WHERE id = ?`,
			timestamp(now),
			id,
		)
	}
	if err != nil {
		return fmt.Errorf("set source active: %w", err)
	}
	return nil
}

func (s *Store) sourceFrequency(ctx context.Context, id int64) time.Duration {
	var seconds int64
	if err := s.db.QueryRowContext(ctx, `SELECT check_frequency_seconds FROM sources WHERE id = ?`, id).Scan(&seconds); err != nil {
		return time.Hour
	}
	return time.Duration(seconds) * time.Second
}

const sourceColumns = "id, source_type, source_name, base_url, adapter_config, check_frequency_seconds, weight, rate_limit_per_hour, last_checked_at, next_check_at, active, consecutive_failures, created_at, updated_at"

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id            int64
		sourceType    string
		sourceName    string
		baseURL       sql.NullString
		adapterConfig sql.NullString
		freqSeconds   int64
		weight        float64
		rateLimit     int64
		lastChecked   sql.NullString
		nextCheck     sql.NullString
		active        int
		failures      int
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id, &sourceType, &sourceName, &baseURL, &adapterConfig,
		&freqSeconds, &weight, &rateLimit, &lastChecked, &nextCheck,
		&active, &failures, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	source := &Source{
		ID:                  id,
		Type:                sourceType,
		Name:                sourceName,
		BaseURL:             baseURL.String,
		AdapterConfig:       adapterConfig.String,
		CheckFrequency:      time.Duration(freqSeconds) * time.Second,
		Weight:              weight,
		RateLimitPerHour:    rateLimit,
		LastCheckedAt:       parseNullableTime(lastChecked),
		Active:              active != 0,
		ConsecutiveFailures: failures,
	}
	if next, err := parseTimeString(nextCheck.String); err == nil {
		source.NextCheckAt = next
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		source.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		source.UpdatedAt = updated
	}
	return source, nil
}
