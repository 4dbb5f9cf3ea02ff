package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"":        DefaultLevel,
		"debug":   log.DebugLevel,
		" WARN ":  log.WarnLevel,
		"error":   log.ErrorLevel,
		"verbose": DefaultLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "test")
	logger.Info("hidden")
	logger.Warn("shown", "item", "Tent")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("output = %q, want info suppressed", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "item=Tent") {
		t.Fatalf("output = %q, want warn line with key/value", out)
	}
}

func TestOpen_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "client.log")
	logger, closer, err := Open(path, "info", "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	logger.Info("group opened", "group", "g-1")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "level=info") || !strings.Contains(string(data), "group=g-1") {
		t.Fatalf("log file = %q, want logfmt info line", data)
	}
}
