// Package pipeline drives items through their lifecycle: quality check after
// discovery, content generation for approved items, retries with a bounded
// budget, and the operator actions that move generated content to published.
//
// The stage graph is enforced here before any write reaches the store; the
// store's compare-and-set transitions then close races between concurrent
// writers. An invalid transition is an invariant violation, a lost CAS is a
// conflict.
package pipeline
