// Package app is the composition root of the terminal client.
//
// Open wires the pieces in order:
//
//	config.Load -> logging.Open -> gateway.NewClient (with a per-process
//	origin id) -> cache.Open -> identity.ParseLocation -> board.New -> Open
//
// Run then starts three things against the same board:
//
//   - the live change feed (board.Listen) in its own goroutine
//   - the fallback poller, which calls board.Refresh only while the feed is
//     not subscribed and backs off exponentially on failure
//   - the bubbletea UI, which blocks until the user quits
//
// Board callbacks push snapshots and sync errors into the shared state.Store
// that the UI renders from. On exit the session flushes debounced edits and
// waits for in-flight writes before closing the cache and log file.
package app
