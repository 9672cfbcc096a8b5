// Package store persists scout state in SQLite: the source registry,
// discovered items with their dedup window bookkeeping, quality filters,
// pipeline records, and the append-only monitoring log.
//
// All multi-step mutations run in transactions. Stage transitions are
// compare-and-set so a single writer wins; concurrent losers receive a
// conflict error and re-read. Duplicate detection is closed here too, via a
// partial unique index on (content_hash, hash_bucket) for original items.
package store
