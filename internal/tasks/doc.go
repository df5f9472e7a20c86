// Package tasks implements the sync pipeline: fetch listening history
// from the provider, resolve each event against the catalog, and commit
// resolved events in checkpointed batches.
//
// A full sync run is one sequential pipeline invocation; the only
// concurrency is in the caller's hands via context cancellation, which is
// honored between batches so a stopped run never leaves a partial batch.
package tasks
