package testsupport

import (
	"context"
	"testing"
	"time"

	"scout/internal/config"
	"scout/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// NewSource registers a monitoring source for tests using the provided store.
func NewSource(t testing.TB, st *store.Store, sourceType, name string) *store.Source {
	t.Helper()

	source, err := st.CreateSource(context.Background(), store.NewSource{
		Type:           sourceType,
		Name:           name,
		CheckFrequency: time.Hour,
	})
	if err != nil {
		t.Fatalf("store.CreateSource: %v", err)
	}
	return source
}
