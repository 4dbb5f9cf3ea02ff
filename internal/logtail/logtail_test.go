package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}

	if err := os.WriteFile(logPath, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "read all (0)", maxLines: 0, expected: expectedAll},
		{name: "read all (negative)", maxLines: -1, expected: expectedAll},
		{name: "read partial (5)", maxLines: 5, expected: expectedAll[5:]},
		{name: "read exactly all (10)", maxLines: 10, expected: expectedAll},
		{name: "read more than exists (20)", maxLines: 20, expected: expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFileIsEmpty(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "nope.log"), 10)
	if err != nil || got != nil {
		t.Fatalf("Read(missing) = %v, %v; want nil, nil", got, err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		level   string
		message string
		fields  []Field
	}{
		{
			name:    "logfmt line",
			input:   `time=2026-10-19T10:00:00Z level=warn msg="item add failed, rolled back" item=Tent err="network unavailable"`,
			level:   "warn",
			message: "item add failed, rolled back",
			fields:  []Field{{"item", "Tent"}, {"err", "network unavailable"}},
		},
		{
			name:    "plain text",
			input:   "panic: something odd",
			message: "panic: something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if got.Level != tt.level || got.Message != tt.message {
				t.Fatalf("Parse() = level %q msg %q, want %q %q", got.Level, got.Message, tt.level, tt.message)
			}
			if !reflect.DeepEqual(got.Fields, tt.fields) {
				t.Fatalf("Parse() fields = %v, want %v", got.Fields, tt.fields)
			}
		})
	}

	e := Parse(`level=info msg="group opened" group=g-1`)
	if e.Field("group") != "g-1" || e.Field("missing") != "" {
		t.Fatalf("Field() lookups wrong for %+v", e)
	}
}

func TestTail_FiltersByLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")
	lines := strings.Join([]string{
		`level=debug msg="retrying read"`,
		`level=info msg="group opened"`,
		``,
		`level=warn msg="change feed interrupted"`,
		`level=error msg="boom"`,
	}, "\n")
	if err := os.WriteFile(logPath, []byte(lines), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := Tail(logPath, 0, "warn")
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "change feed interrupted" {
		t.Fatalf("Tail() = %+v, want warn and error entries", entries)
	}
}
