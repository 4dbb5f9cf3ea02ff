package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logfmt/logfmt"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file is empty.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Field is one key/value pair of a log entry beyond time, level and message.
type Field struct {
	Key   string
	Value string
}

// Entry is a decoded logfmt line.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	Fields  []Field
	Raw     string
}

// Field returns the value of key, or "".
func (e Entry) Field(key string) string {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
	"fatal": 4,
}

// AtLeast reports whether the entry's level is at or above min. Unknown
// levels always pass.
func (e Entry) AtLeast(min string) bool {
	want, ok := levelRank[strings.ToLower(min)]
	if !ok {
		return true
	}
	got, ok := levelRank[strings.ToLower(e.Level)]
	if !ok {
		return true
	}
	return got >= want
}

// Parse decodes one logfmt line. Lines that are not logfmt come back with
// only Raw and Message set.
func Parse(line string) Entry {
	entry := Entry{Raw: line}
	dec := logfmt.NewDecoder(strings.NewReader(line))
	if !dec.ScanRecord() {
		entry.Message = line
		return entry
	}
	for dec.ScanKeyval() {
		key, val := string(dec.Key()), string(dec.Value())
		switch key {
		case "time", "ts":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				entry.Time = t
			}
		case "level", "lvl":
			entry.Level = strings.ToLower(val)
		case "msg", "message":
			entry.Message = val
		default:
			entry.Fields = append(entry.Fields, Field{Key: key, Value: val})
		}
	}
	if dec.Err() != nil || (entry.Level == "" && entry.Message == "") {
		return Entry{Raw: line, Message: line}
	}
	return entry
}

// Tail reads the last maxLines of path and returns the entries at or above
// minLevel, oldest first.
func Tail(path string, maxLines int, minLevel string) ([]Entry, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		e := Parse(line)
		if e.AtLeast(minLevel) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
