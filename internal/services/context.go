package services

import "context"

type contextKey string

const (
	sourceIDKey contextKey = "source_id"
	itemIDKey   contextKey = "item_id"
	cycleIDKey  contextKey = "cycle_id"
)

// WithSourceID annotates context with the monitoring source identifier.
func WithSourceID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, sourceIDKey, id)
}

// SourceIDFromContext extracts the monitoring source identifier if present.
func SourceIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(sourceIDKey).(int64)
	return v, ok
}

// WithItemID annotates context with the discovered item identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the discovered item identifier if present.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(itemIDKey).(int64)
	return v, ok
}

// WithCycleID annotates context with a scheduler cycle correlation identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext extracts the cycle correlation identifier if present.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(cycleIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
