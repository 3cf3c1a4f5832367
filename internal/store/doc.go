// Package store keeps the latest activity of every poller.
//
// The CLI feeds poller events into a [MemoryStore], which folds them into one
// [Activity] record per poller and fans each change out to subscribers.
// Subscribers receive updates via buffered channels with non-blocking sends:
// a slow subscriber misses updates rather than stalling the pollers.
package store
