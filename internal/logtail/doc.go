// Package logtail reads the tail of the client log for the activity view.
//
// Read uses a ring buffer so only the last N lines are held in memory no
// matter how large the file has grown. Parse decodes the logfmt lines the
// client writes (time, level, msg and free key/value pairs); anything else is
// kept as a raw message. Tail combines both and filters by minimum level.
//
//	entries, err := logtail.Tail(cfg.Client.LogFile, 200, "info")
package logtail
