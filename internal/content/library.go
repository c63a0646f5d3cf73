// Package content loads published book text from disk and serves it as
// numbered chapters. The on-disk layout is one directory per book holding
// ordered markdown files:
//
//	content/
//	  north-wind/
//	    01-the-harbor.md
//	    02-the-crossing.md
//
// The directory name is the book ID. A chapter's ID is "{bookID}/{stem}",
// so "north-wind/01-the-harbor". Chapter IDs never contain a colon; target
// keys depend on that.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/errors"
)

// chapterFilePattern matches "NN-title.md": a two-digit ordinal, a dash,
// and a slug.
var chapterFilePattern = regexp.MustCompile(`^(\d{2})-(.+)\.md$`)

// settleDelay debounces rapid rewrites (editors write files in bursts).
const settleDelay = 500 * time.Millisecond

// Library holds the loaded books and chapters and keeps them current when
// the content directory changes on disk.
type Library struct {
	root   string
	logger *slog.Logger

	mu       sync.RWMutex
	books    map[string]*domain.Book
	chapters map[string]*domain.Chapter

	watcher *fsnotify.Watcher

	reloadMu    sync.Mutex
	reloadTimer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLibrary creates a Library rooted at the given content directory and
// performs the initial load.
func NewLibrary(root string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Library{
		root:     root,
		logger:   logger,
		books:    make(map[string]*domain.Book),
		chapters: make(map[string]*domain.Chapter),
		done:     make(chan struct{}),
	}

	if err := l.Reload(); err != nil {
		return nil, err
	}

	return l, nil
}

// Reload rescans the content directory and atomically replaces the loaded
// state. A failed scan leaves the previous state in place.
func (l *Library) Reload() error {
	books := make(map[string]*domain.Book)
	chapters := make(map[string]*domain.Chapter)

	entries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("failed to read content root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		bookID := entry.Name()
		bookChapters, err := l.loadBook(bookID)
		if err != nil {
			l.logger.Warn("skipping unreadable book directory",
				slog.String("book_id", bookID),
				slog.String("error", err.Error()))
			continue
		}
		if len(bookChapters) == 0 {
			continue
		}

		books[bookID] = &domain.Book{
			ID:       bookID,
			Title:    titleFromSlug(bookID),
			Chapters: len(bookChapters),
		}
		for _, ch := range bookChapters {
			chapters[ch.ID] = ch
		}
	}

	l.mu.Lock()
	l.books = books
	l.chapters = chapters
	l.mu.Unlock()

	l.logger.Info("content loaded",
		slog.Int("books", len(books)),
		slog.Int("chapters", len(chapters)))
	return nil
}

// loadBook reads every chapter file in one book directory.
func (l *Library) loadBook(bookID string) ([]*domain.Chapter, error) {
	dir := filepath.Join(l.root, bookID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var chapters []*domain.Chapter
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := chapterFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		ordinal, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			l.logger.Warn("failed to read chapter file",
				slog.String("path", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), ".md")
		body := string(raw)
		chapters = append(chapters, &domain.Chapter{
			ID:      bookID + "/" + stem,
			BookID:  bookID,
			Title:   titleFromSlug(m[2]),
			Ordinal: ordinal,
			Body:    body,
			Lines:   domain.NumberLines(body),
		})
	}

	sort.Slice(chapters, func(i, j int) bool {
		return chapters[i].Ordinal < chapters[j].Ordinal
	})
	return chapters, nil
}

// titleFromSlug turns "the-harbor" into "The Harbor".
func titleFromSlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// GetBook returns a book by ID.
func (l *Library) GetBook(bookID string) (*domain.Book, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	book, ok := l.books[bookID]
	if !ok {
		return nil, errors.NotFoundf("book %q not found", bookID)
	}
	return book, nil
}

// ListBooks returns all loaded books sorted by ID.
func (l *Library) ListBooks() []*domain.Book {
	l.mu.RLock()
	defer l.mu.RUnlock()

	books := make([]*domain.Book, 0, len(l.books))
	for _, b := range l.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books
}

// GetChapter returns a chapter by ID.
func (l *Library) GetChapter(chapterID string) (*domain.Chapter, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chapter, ok := l.chapters[chapterID]
	if !ok {
		return nil, errors.NotFoundf("chapter %q not found", chapterID)
	}
	return chapter, nil
}

// ListChapters returns a book's chapters in reading order.
func (l *Library) ListChapters(bookID string) ([]*domain.Chapter, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.books[bookID]; !ok {
		return nil, errors.NotFoundf("book %q not found", bookID)
	}

	var chapters []*domain.Chapter
	for _, ch := range l.chapters {
		if ch.BookID == bookID {
			chapters = append(chapters, ch)
		}
	}
	sort.Slice(chapters, func(i, j int) bool {
		return chapters[i].Ordinal < chapters[j].Ordinal
	})
	return chapters, nil
}

// ValidateTarget checks that an engagement target refers to loaded content
// and, for line targets, to a line index the chapter actually has.
func (l *Library) ValidateTarget(target domain.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	switch target.Kind {
	case domain.TargetBook:
		if _, ok := l.books[target.BookID]; !ok {
			return errors.NotFoundf("book %q not found", target.BookID)
		}
	case domain.TargetChapter, domain.TargetLine:
		chapter, ok := l.chapters[target.ChapterID]
		if !ok {
			return errors.NotFoundf("chapter %q not found", target.ChapterID)
		}
		if target.Kind == domain.TargetLine && target.LineIndex > len(chapter.Lines) {
			return errors.Validationf("line %d out of range for chapter %q (%d lines)",
				target.LineIndex, target.ChapterID, len(chapter.Lines))
		}
	}
	return nil
}

// Watch starts watching the content directory and reloads on changes.
// It blocks until the context is cancelled.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	l.watcher = watcher

	if err := watcher.Add(l.root); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch content root: %w", err)
	}

	// Watch each book directory too; fsnotify is not recursive.
	entries, err := os.ReadDir(l.root)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
				if err := watcher.Add(filepath.Join(l.root, entry.Name())); err != nil {
					l.logger.Warn("failed to watch book directory",
						slog.String("dir", entry.Name()),
						slog.String("error", err.Error()))
				}
			}
		}
	}

	l.wg.Add(1)
	go l.processEvents(ctx)

	l.logger.Info("content watcher started", slog.String("root", l.root))

	<-ctx.Done()
	close(l.done)
	watcher.Close()
	l.wg.Wait()
	return nil
}

// processEvents consumes fsnotify events and schedules debounced reloads.
func (l *Library) processEvents(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("content watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent reacts to one filesystem event. New book directories get
// added to the watch set; everything else schedules a reload.
func (l *Library) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := l.watcher.Add(event.Name); err != nil {
				l.logger.Warn("failed to watch new directory",
					slog.String("dir", event.Name),
					slog.String("error", err.Error()))
			}
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	l.scheduleReload()
}

// scheduleReload debounces reloads so a burst of writes triggers one scan.
func (l *Library) scheduleReload() {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	if l.reloadTimer != nil {
		l.reloadTimer.Stop()
	}
	l.reloadTimer = time.AfterFunc(settleDelay, func() {
		if err := l.Reload(); err != nil {
			l.logger.Error("content reload failed", slog.String("error", err.Error()))
		}
	})
}
