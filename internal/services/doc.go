// Package services defines shared utilities consumed by the scheduler, the
// ingestion path, and the pipeline manager.
//
// Key responsibilities:
//   - Context helpers that stamp source ids, item ids, and cycle correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the taxonomy the scheduler and pipeline act on (transient vs
//     permanent source errors, invariant violations, conflicts).
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, backoff, observability) stays uniform across the pipeline.
package services
