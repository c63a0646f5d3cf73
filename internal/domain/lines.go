package domain

import "strings"

// FirstLineIndex is the index of the first line of a chapter.
// Line numbering is 1-based everywhere: storage keys, comment references,
// API paths. There is exactly one numbering scheme in the system.
const FirstLineIndex = 1

// Line is a single numbered line of chapter text.
//
// Numbering is computed once from the raw chapter content, before any
// display filtering. Blank lines keep their index and are only flagged,
// so skipping them for display can never shift the numbers that persisted
// likes and comments refer to.
type Line struct {
	Index int    `json:"index"` // 1-based position in the raw text
	Text  string `json:"text"`
	Blank bool   `json:"blank"` // true when the trimmed text is empty
}

// NumberLines splits raw chapter content on line breaks and assigns
// stable 1-based indices. Windows line endings are normalized first.
// The result is deterministic: the same content always yields the same
// numbering, regardless of how the caller later filters it for display.
func NumberLines(raw string) []Line {
	if raw == "" {
		return nil
	}

	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	parts := strings.Split(normalized, "\n")

	lines := make([]Line, len(parts))
	for i, text := range parts {
		lines[i] = Line{
			Index: i + FirstLineIndex,
			Text:  text,
			Blank: strings.TrimSpace(text) == "",
		}
	}
	return lines
}

// DisplayLines returns the non-blank lines with their original indices
// intact. This is the only sanctioned way to filter for rendering.
func DisplayLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if !l.Blank {
			out = append(out, l)
		}
	}
	return out
}

// LineCount returns the highest valid line index for the given raw content.
func LineCount(raw string) int {
	return len(NumberLines(raw))
}
