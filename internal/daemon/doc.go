// Package daemon coordinates the long-running scoutd process.
//
// It wires configuration, the store, the source scheduler, and the pipeline
// manager into a single lifecycle with flock-based locking to prevent multiple
// instances. Keep orchestration logic here: individual pipeline steps live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
