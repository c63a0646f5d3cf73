package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marginaliapress/marginalia-server/internal/errors"
)

// TargetKind discriminates what an engagement action applies to.
type TargetKind string

const (
	// TargetBook is an engagement on a whole book.
	TargetBook TargetKind = "book"
	// TargetChapter is an engagement on a whole chapter.
	TargetChapter TargetKind = "chapter"
	// TargetLine is an engagement on a single line of chapter text.
	TargetLine TargetKind = "line"
)

// Valid checks if the kind is valid.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetBook, TargetChapter, TargetLine:
		return true
	default:
		return false
	}
}

// Target identifies the entity a like or comment applies to.
// Exactly one variant is populated, discriminated by Kind; use the
// constructors rather than building the struct by hand so the invariants hold.
type Target struct {
	Kind      TargetKind `json:"kind"`
	BookID    string     `json:"book_id,omitempty"`
	ChapterID string     `json:"chapter_id,omitempty"`
	// LineIndex is the 1-based line number within the chapter's raw text.
	// Only meaningful when Kind is TargetLine.
	LineIndex int `json:"line_index,omitempty"`
}

// BookTarget creates a book-scoped target.
func BookTarget(bookID string) Target {
	return Target{Kind: TargetBook, BookID: bookID}
}

// ChapterTarget creates a chapter-scoped target.
func ChapterTarget(chapterID string) Target {
	return Target{Kind: TargetChapter, ChapterID: chapterID}
}

// LineTarget creates a line-scoped target.
func LineTarget(chapterID string, lineIndex int) Target {
	return Target{Kind: TargetLine, ChapterID: chapterID, LineIndex: lineIndex}
}

// Validate checks the target is well-formed for its kind.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetBook:
		if t.BookID == "" {
			return errors.Validation("book target requires a book id")
		}
		if t.ChapterID != "" || t.LineIndex != 0 {
			return errors.Validation("book target must not carry chapter or line fields")
		}
	case TargetChapter:
		if t.ChapterID == "" {
			return errors.Validation("chapter target requires a chapter id")
		}
		if t.BookID != "" || t.LineIndex != 0 {
			return errors.Validation("chapter target must not carry book or line fields")
		}
	case TargetLine:
		if t.ChapterID == "" {
			return errors.Validation("line target requires a chapter id")
		}
		if t.LineIndex < FirstLineIndex {
			return errors.Validationf("line index must be >= %d, got %d", FirstLineIndex, t.LineIndex)
		}
		if t.BookID != "" {
			return errors.Validation("line target must not carry a book id")
		}
	default:
		return errors.Validationf("unknown target kind %q", t.Kind)
	}
	return nil
}

// Key returns the canonical storage and wire key for the target.
// Formats: "book:{id}", "chapter:{id}", "line:{chapterID}:{index}".
// The key is stable: persisted like and comment references use it directly.
func (t Target) Key() string {
	switch t.Kind {
	case TargetBook:
		return "book:" + t.BookID
	case TargetChapter:
		return "chapter:" + t.ChapterID
	case TargetLine:
		return fmt.Sprintf("line:%s:%d", t.ChapterID, t.LineIndex)
	default:
		return ""
	}
}

// ParseTargetKey parses a canonical target key back into a Target.
func ParseTargetKey(key string) (Target, error) {
	kind, rest, found := strings.Cut(key, ":")
	if !found || rest == "" {
		return Target{}, errors.Validationf("malformed target key %q", key)
	}

	switch TargetKind(kind) {
	case TargetBook:
		return BookTarget(rest), nil
	case TargetChapter:
		return ChapterTarget(rest), nil
	case TargetLine:
		chapterID, idxStr, found := strings.Cut(rest, ":")
		if !found || chapterID == "" {
			return Target{}, errors.Validationf("malformed line target key %q", key)
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < FirstLineIndex {
			return Target{}, errors.Validationf("malformed line index in target key %q", key)
		}
		return LineTarget(chapterID, idx), nil
	default:
		return Target{}, errors.Validationf("unknown target kind in key %q", key)
	}
}
