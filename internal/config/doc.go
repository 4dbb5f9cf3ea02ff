// Package config loads the mochiyoru TOML configuration shared by the client
// and the reference server.
//
// # Resolution
//
//  1. An explicit path wins; otherwise ~/.config/mochiyoru/config.toml is used.
//  2. A missing file is not an error: every field has a default.
//  3. Empty or whitespace-only values keep their defaults.
//  4. MOCHIYORU_API_URL, MOCHIYORU_DATABASE, MOCHIYORU_REDIS_URL and
//     MOCHIYORU_LISTEN override the file.
//
// # Format
//
//	[client]
//	api_url = "http://127.0.0.1:8788"
//	share_base = "https://mochi.example"  # defaults to api_url
//	request_timeout = "5s"
//	read_retries = 2
//	debounce = "500ms"
//	cache = "file"            # file | memory | redis
//	redis_url = "redis://localhost:6379/0"
//	log_level = "info"
//
//	[server]
//	listen = ":8788"
//	database = "~/.local/share/mochiyoru/mochiyoru.db"  # or postgres://...
//	ping_interval = "20s"
//
// Durations take Go duration strings; a bare integer is read as milliseconds.
// Paths get tilde expansion. A database value containing "://" is passed
// through untouched.
package config
