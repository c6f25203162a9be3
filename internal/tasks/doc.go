// package tasks orchestrates the track analysis pipeline.
//
// The core abstraction is Pipeline, which coordinates the track metadata
// lookup, the preview provider chain, the analysis engine and the cache
// into the exposed operations: single-track resolution, cache-first batch
// resolution over the engine's streaming protocol, selection updates and
// the mismatch review workflow.
//
// Concurrency rules live here too. A single-flight group bounds work to one
// in-progress computation per track ID, provider attempts within one track
// are strictly sequential, and batch submissions go out in fixed-size
// chunks so upstream load stays bounded. Long-running operations emit
// progress updates via channels for non-blocking status reporting to the
// CLI/UI layers.
package tasks
