// Package state provides the thread-safe snapshot shared by the board
// callbacks, the fallback poller and the terminal UI.
//
// Producers (board change callbacks, the poller) write with Update, SetBoard
// and Notify; the UI reads with Snapshot on its own tick. Both directions copy
// slices so neither side can mutate what the other holds.
//
//	// success: board replaced, error cleared, failure count reset
//	store.Update(&st, nil)
//
//	// failure: board kept, error recorded, failure count incremented
//	store.Update(nil, err)
//
// Two consecutive failures mark the snapshot offline. SetBoard records local
// changes without resetting that count. Notices form a bounded activity
// history for sync errors and feed events.
//
// The zero Store is ready to use.
package state
