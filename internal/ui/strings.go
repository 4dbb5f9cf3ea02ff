package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// truncate shortens value to at most limit terminal cells, adding an
// ellipsis when something was cut. Wide (CJK) runes count as two cells.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= limit {
		return value
	}
	if limit <= 1 {
		return runewidth.Truncate(value, limit, "")
	}
	return runewidth.Truncate(value, limit, "…")
}

// padRight pads s with spaces to width terminal cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// cell truncates then pads so columns line up.
func cell(s string, width int) string {
	return padRight(truncate(s, width), width)
}
