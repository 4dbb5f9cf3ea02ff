package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIURL, EnvDatabase, EnvRedisURL, EnvListen} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Client.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.Client.APIURL, defaultAPIURL)
	}
	if cfg.Client.Debounce != 500*time.Millisecond {
		t.Fatalf("Debounce = %v, want 500ms", cfg.Client.Debounce)
	}
	if cfg.Client.DeleteEchoGrace != time.Second {
		t.Fatalf("DeleteEchoGrace = %v, want 1s", cfg.Client.DeleteEchoGrace)
	}
	if cfg.Client.Cache != "file" {
		t.Fatalf("Cache = %q, want file", cfg.Client.Cache)
	}
	wantDir, err := expandPath(defaultDataDir)
	if err != nil {
		t.Fatalf("expandPath(defaultDataDir) returned error: %v", err)
	}
	if cfg.Client.CachePath != filepath.Join(wantDir, "cache.toml") {
		t.Fatalf("CachePath = %q, want it under %q", cfg.Client.CachePath, wantDir)
	}
	if cfg.Server.Listen != ":8788" || cfg.Server.PingInterval != 20*time.Second {
		t.Fatalf("Server = %+v, want defaults", cfg.Server)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
[client]
api_url = "  http://10.0.0.5:9999  "
request_timeout = "2s"
read_retries = 0
debounce = 250
cache = " Redis "
cache_path = "  ~/.mochi/cache.toml  "

[server]
listen = ":9000"
database = "postgres://u:p@db/mochi"
ping_interval = "5s"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Client.APIURL != "http://10.0.0.5:9999" {
		t.Fatalf("APIURL = %q, want %q", cfg.Client.APIURL, "http://10.0.0.5:9999")
	}
	if cfg.Client.RequestTimeout != 2*time.Second {
		t.Fatalf("RequestTimeout = %v, want 2s", cfg.Client.RequestTimeout)
	}
	if cfg.Client.ReadRetries != 0 {
		t.Fatalf("ReadRetries = %d, want 0", cfg.Client.ReadRetries)
	}
	if cfg.Client.Debounce != 250*time.Millisecond {
		t.Fatalf("Debounce = %v, want 250ms", cfg.Client.Debounce)
	}
	if cfg.Client.Cache != "redis" {
		t.Fatalf("Cache = %q, want redis", cfg.Client.Cache)
	}
	if !strings.HasPrefix(cfg.Client.CachePath, home) {
		t.Fatalf("CachePath = %q, want it under HOME %q", cfg.Client.CachePath, home)
	}
	if cfg.Server.Database != "postgres://u:p@db/mochi" {
		t.Fatalf("Database = %q, want the URL untouched", cfg.Server.Database)
	}
	if cfg.Server.Listen != ":9000" || cfg.Server.PingInterval != 5*time.Second {
		t.Fatalf("Server = %+v", cfg.Server)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
[client]
api_url = "   "
debounce = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Client.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.Client.APIURL, defaultAPIURL)
	}
	if cfg.Client.Debounce != defaultDebounce {
		t.Fatalf("Debounce = %v, want %v", cfg.Client.Debounce, defaultDebounce)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvAPIURL, "http://api.internal:8788")
	t.Setenv(EnvDatabase, "postgres://env/db")
	t.Setenv(EnvRedisURL, "redis://cache:6379/1")
	t.Setenv(EnvListen, ":7000")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[client]\napi_url = \"http://file:1\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Client.APIURL != "http://api.internal:8788" {
		t.Fatalf("APIURL = %q, want env value", cfg.Client.APIURL)
	}
	if cfg.Client.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("RedisURL = %q, want env value", cfg.Client.RedisURL)
	}
	if cfg.Server.Database != "postgres://env/db" || cfg.Server.Listen != ":7000" {
		t.Fatalf("Server = %+v, want env values", cfg.Server)
	}
}

func TestLoad_InvalidValuesFail(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad toml", `[client`, "parse config"},
		{"bad duration", "[client]\ndebounce = \"soon\"\n", "client.debounce"},
		{"negative duration", "[server]\nping_interval = \"-1s\"\n", "server.ping_interval"},
		{"negative retries", "[client]\nread_retries = -1\n", "read_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load returned nil error, want one mentioning %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}

func TestClient_ShareRootDefaultsToAPIURL(t *testing.T) {
	c := Client{APIURL: "http://api:8788"}
	if got := c.ShareRoot(); got != "http://api:8788" {
		t.Fatalf("ShareRoot() = %q, want the api url", got)
	}
	c.ShareBase = "https://mochi.example"
	if got := c.ShareRoot(); got != "https://mochi.example" {
		t.Fatalf("ShareRoot() = %q, want the share base", got)
	}
}
