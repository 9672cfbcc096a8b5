package logging

import (
	"context"
	"log/slog"

	"scout/internal/services"
)

// Shared structured log field names. Using constants keeps the scheduler,
// ingestion, and pipeline manager emitting the same keys for the same things.
const (
	FieldComponent = "component"

	FieldSourceID = "source_id"

	FieldSourceName = "source_name"

	FieldItemID = "item_id"

	FieldRecordID = "record_id"

	FieldStage = "stage"

	FieldCycleID = "cycle_id"

	FieldEventType = "event_type"

	FieldErrorCode = "error_code"

	FieldErrorHint = "error_hint"
)

// WithContext returns a logger enriched with any scout identifiers carried by
// the context (source id, item id, cycle id).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	if id, ok := services.SourceIDFromContext(ctx); ok {
		logger = logger.With(Int64(FieldSourceID, id))
	}
	if id, ok := services.ItemIDFromContext(ctx); ok {
		logger = logger.With(Int64(FieldItemID, id))
	}
	if id, ok := services.CycleIDFromContext(ctx); ok {
		logger = logger.With(String(FieldCycleID, id))
	}
	return logger
}
