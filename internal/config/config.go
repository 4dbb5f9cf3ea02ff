package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the client and server settings.
type Config struct {
	Client Client
	Server Server
}

// Client configures the terminal client.
type Client struct {
	APIURL          string
	ShareBase       string
	RequestTimeout  time.Duration
	ReadRetries     int
	RetryBackoff    time.Duration
	Debounce        time.Duration
	InsertEchoGrace time.Duration
	UpdateEchoGrace time.Duration
	DeleteEchoGrace time.Duration
	PollInterval    time.Duration
	Cache           string
	CachePath       string
	RedisURL        string
	LogFile         string
	LogLevel        string
}

// Server configures the reference storage and feed server.
type Server struct {
	Listen       string
	Database     string
	PingInterval time.Duration
	LogLevel     string
}

const (
	defaultConfigPath = "~/.config/mochiyoru/config.toml"
	defaultDataDir    = "~/.local/share/mochiyoru"

	defaultAPIURL          = "http://127.0.0.1:8788"
	defaultRequestTimeout  = 5 * time.Second
	defaultReadRetries     = 2
	defaultRetryBackoff    = 250 * time.Millisecond
	defaultDebounce        = 500 * time.Millisecond
	defaultInsertEchoGrace = 500 * time.Millisecond
	defaultUpdateEchoGrace = 500 * time.Millisecond
	defaultDeleteEchoGrace = time.Second
	defaultPollInterval    = 5 * time.Second
	defaultCache           = "file"
	defaultLogLevel        = "info"

	defaultListen       = ":8788"
	defaultPingInterval = 20 * time.Second
)

// Environment overrides, applied after the file.
const (
	EnvAPIURL   = "MOCHIYORU_API_URL"
	EnvDatabase = "MOCHIYORU_DATABASE"
	EnvRedisURL = "MOCHIYORU_REDIS_URL"
	EnvListen   = "MOCHIYORU_LISTEN"
)

type rawConfig struct {
	Client struct {
		APIURL          string `toml:"api_url"`
		ShareBase       string `toml:"share_base"`
		RequestTimeout  string `toml:"request_timeout"`
		ReadRetries     *int   `toml:"read_retries"`
		RetryBackoff    string `toml:"retry_backoff"`
		Debounce        string `toml:"debounce"`
		InsertEchoGrace string `toml:"insert_echo_grace"`
		UpdateEchoGrace string `toml:"update_echo_grace"`
		DeleteEchoGrace string `toml:"delete_echo_grace"`
		PollInterval    string `toml:"poll_interval"`
		Cache           string `toml:"cache"`
		CachePath       string `toml:"cache_path"`
		RedisURL        string `toml:"redis_url"`
		LogFile         string `toml:"log_file"`
		LogLevel        string `toml:"log_level"`
	} `toml:"client"`
	Server struct {
		Listen       string `toml:"listen"`
		Database     string `toml:"database"`
		PingInterval string `toml:"ping_interval"`
		LogLevel     string `toml:"log_level"`
	} `toml:"server"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir := mustExpand(defaultDataDir)
	return Config{
		Client: Client{
			APIURL:          defaultAPIURL,
			RequestTimeout:  defaultRequestTimeout,
			ReadRetries:     defaultReadRetries,
			RetryBackoff:    defaultRetryBackoff,
			Debounce:        defaultDebounce,
			InsertEchoGrace: defaultInsertEchoGrace,
			UpdateEchoGrace: defaultUpdateEchoGrace,
			DeleteEchoGrace: defaultDeleteEchoGrace,
			PollInterval:    defaultPollInterval,
			Cache:           defaultCache,
			CachePath:       filepath.Join(dataDir, "cache.toml"),
			LogFile:         filepath.Join(dataDir, "client.log"),
			LogLevel:        defaultLogLevel,
		},
		Server: Server{
			Listen:       defaultListen,
			Database:     filepath.Join(dataDir, "mochiyoru.db"),
			PingInterval: defaultPingInterval,
			LogLevel:     defaultLogLevel,
		},
	}
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields defaults. Environment overrides win over both.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := merge(&cfg, raw); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// ShareRoot returns the root of shareable group links, which defaults to
// the API address.
func (c Client) ShareRoot() string {
	if c.ShareBase != "" {
		return c.ShareBase
	}
	return c.APIURL
}

func merge(cfg *Config, raw rawConfig) error {
	c, s := raw.Client, raw.Server

	setString(&cfg.Client.APIURL, c.APIURL)
	setString(&cfg.Client.ShareBase, c.ShareBase)
	setString(&cfg.Client.Cache, strings.ToLower(c.Cache))
	setPath(&cfg.Client.CachePath, c.CachePath)
	setString(&cfg.Client.RedisURL, c.RedisURL)
	setPath(&cfg.Client.LogFile, c.LogFile)
	setString(&cfg.Client.LogLevel, c.LogLevel)
	if c.ReadRetries != nil {
		if *c.ReadRetries < 0 {
			return fmt.Errorf("parse config: client.read_retries must not be negative")
		}
		cfg.Client.ReadRetries = *c.ReadRetries
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"client.request_timeout", c.RequestTimeout, &cfg.Client.RequestTimeout},
		{"client.retry_backoff", c.RetryBackoff, &cfg.Client.RetryBackoff},
		{"client.debounce", c.Debounce, &cfg.Client.Debounce},
		{"client.insert_echo_grace", c.InsertEchoGrace, &cfg.Client.InsertEchoGrace},
		{"client.update_echo_grace", c.UpdateEchoGrace, &cfg.Client.UpdateEchoGrace},
		{"client.delete_echo_grace", c.DeleteEchoGrace, &cfg.Client.DeleteEchoGrace},
		{"client.poll_interval", c.PollInterval, &cfg.Client.PollInterval},
		{"server.ping_interval", s.PingInterval, &cfg.Server.PingInterval},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("parse config: %s: %w", d.key, err)
		}
	}

	setString(&cfg.Server.Listen, s.Listen)
	if db := strings.TrimSpace(s.Database); db != "" {
		if isURL(db) {
			cfg.Server.Database = db
		} else {
			cfg.Server.Database = mustExpand(db)
		}
	}
	setString(&cfg.Server.LogLevel, s.LogLevel)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Client.APIURL = getenv(EnvAPIURL, cfg.Client.APIURL)
	cfg.Client.RedisURL = getenv(EnvRedisURL, cfg.Client.RedisURL)
	cfg.Server.Database = getenv(EnvDatabase, cfg.Server.Database)
	cfg.Server.Listen = getenv(EnvListen, cfg.Server.Listen)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, raw string) {
	if v := strings.TrimSpace(raw); v != "" {
		*dst = v
	}
}

func setPath(dst *string, raw string) {
	if v := strings.TrimSpace(raw); v != "" {
		*dst = mustExpand(v)
	}
}

// setDuration accepts Go duration strings and bare integers as milliseconds.
func setDuration(dst *time.Duration, raw string) error {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		if ms < 0 {
			return fmt.Errorf("duration %q must not be negative", v)
		}
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("duration %q must not be negative", v)
	}
	*dst = d
	return nil
}

func isURL(s string) bool {
	return strings.Contains(s, "://")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
