package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scout/internal/services"
)

// NewFilter describes a quality filter to register.
type NewFilter struct {
	Name       string
	Kind       string
	SourceType string
	Priority   int
	Advisory   bool
	Config     string
}

var filterKinds = map[string]struct{}{
	FilterKeyword:        {},
	FilterRegex:          {},
	FilterScoreThreshold: {},
	FilterSourceSpecific: {},
}

// CreateFilter registers a quality filter.
func (s *Store) CreateFilter(ctx context.Context, input NewFilter) (*Filter, error) {
	if input.Name == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create filter", "filter name is required", nil)
	}
	if _, ok := filterKinds[input.Kind]; !ok {
		return nil, services.Wrap(services.ErrValidation, "store", "create filter",
			fmt.Sprintf("unknown filter kind %q", input.Kind), nil)
	}
	config := input.Config
	if config == "" {
		config = "{}"
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO filters (
            name, kind, source_type, priority, active, advisory, config,
            total_evaluated, total_passed, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 1, ?, ?, 0, 0, ?, ?)`,
		input.Name,
		input.Kind,
		nullableString(input.SourceType),
		input.Priority,
		boolToInt(input.Advisory),
		config,
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		if isUniqueViolation(err, "filters.name") {
			return nil, services.Wrap(services.ErrConflict, "store", "create filter",
				fmt.Sprintf("filter %q already exists", input.Name), err)
		}
		return nil, fmt.Errorf("insert filter: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetFilterByID(ctx, id)
}

// GetFilterByID fetches a filter by identifier.
func (s *Store) GetFilterByID(ctx context.Context, id int64) (*Filter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+filterColumns+` FROM filters WHERE id = ?`, id)
	filter, err := scanFilter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get filter: %w", err)
	}
	return filter, nil
}

// GetFilterByName fetches a filter by its unique name.
func (s *Store) GetFilterByName(ctx context.Context, name string) (*Filter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+filterColumns+` FROM filters WHERE name = ?`, name)
	filter, err := scanFilter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get filter by name: %w", err)
	}
	return filter, nil
}

// ListFilters returns all filters ordered by descending priority.
func (s *Store) ListFilters(ctx context.Context) ([]*Filter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+filterColumns+` FROM filters ORDER BY priority DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	defer rows.Close()
	return collectFilters(rows)
}

// ActiveFiltersForScope returns active filters applicable to a source type
// (its own plus global filters), ordered by descending priority. Evaluation
// order ties break on name so chains are deterministic.
func (s *Store) ActiveFiltersForScope(ctx context.Context, sourceType string) ([]*Filter, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+filterColumns+` FROM filters
         WHERE active = 1 AND (source_type IS NULL OR source_type = ?)
         ORDER BY priority DESC, name`,
		sourceType,
	)
	if err != nil {
		return nil, fmt.Errorf("filters for scope: %w", err)
	}
	defer rows.Close()
	return collectFilters(rows)
}

// IncrementFilterCounters bumps the evaluation counters in SQL so concurrent
// chains never lose updates to a read-modify-write race.
func (s *Store) IncrementFilterCounters(ctx context.Context, id int64, passed bool) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE filters
         SET total_evaluated = total_evaluated + 1,
             total_passed = total_passed + ?,
             updated_at = ?
         WHERE id = ?`,
		boolToInt(passed),
		timestamp(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("increment filter counters: %w", err)
	}
	return nil
}

// SetFilterActive toggles a filter without losing its counters.
func (s *Store) SetFilterActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE filters SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active),
		timestamp(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set filter active: %w", err)
	}
	return nil
}

func collectFilters(rows *sql.Rows) ([]*Filter, error) {
	var filters []*Filter
	for rows.Next() {
		filter, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, rows.Err()
}

const filterColumns = "id, name, kind, source_type, priority, active, advisory, config, total_evaluated, total_passed, created_at, updated_at"

func scanFilter(scanner interface{ Scan(dest ...any) error }) (*Filter, error) {
	var (
		id         int64
		name       string
		kind       string
		sourceType sql.NullString
		priority   int
		active     int
		advisory   int
		configRaw  string
		evaluated  int64
		passed     int64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id, &name, &kind, &sourceType, &priority, &active, &advisory,
		&configRaw, &evaluated, &passed, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	filter := &Filter{
		ID:             id,
		Name:           name,
		Kind:           kind,
		SourceType:     sourceType.String,
		Priority:       priority,
		Active:         active != 0,
		Advisory:       advisory != 0,
		Config:         configRaw,
		TotalEvaluated: evaluated,
		TotalPassed:    passed,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		filter.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		filter.UpdatedAt = updated
	}
	return filter, nil
}
