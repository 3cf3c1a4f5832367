// Package server exposes poller activity over HTTP while the CLI watches
// its targets.
//
//   - GET /api/pollers: all activity records as JSON, sorted by name
//   - GET /api/pollers/{id}: one poller's activity record
//   - GET /api/events: Server-Sent Events stream of activity updates
//
// The server shuts down gracefully when its context is cancelled, with a
// 5-second timeout for in-flight requests.
package server
