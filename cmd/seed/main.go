// Package main provides a tool to seed demo content and engagement data.
//
// It writes a small sample book into the content directory and populates
// the database with likes and comments from a handful of synthetic
// readers, enough to exercise the engagement surface locally.
//
// Usage:
//
//	DATA_PATH=~/Marginalia/data go run ./cmd/seed
//	DATA_PATH=~/Marginalia/data go run ./cmd/seed --readers 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/marginaliapress/marginalia-server/internal/content"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/id"
	"github.com/marginaliapress/marginalia-server/internal/store"
)

var readers = flag.Int("readers", 8, "Number of synthetic readers to engage with the content")

const demoBookID = "the-north-wind"

var demoChapters = map[string]string{
	"01-the-harbor.md": `The ship waited at the end of the pier.

Gulls turned overhead in slow circles.
Nobody on the quay spoke above a whisper.
The tide rose through the morning and kept rising.`,
	"02-open-water.md": `By noon the coast was a pencil line.

The wind came up from the north, steady and cold.
Sails filled; the hull leaned into the swell.
Somewhere below, a loose lantern knocked out the hours.`,
}

var commentBodies = []string{
	"Güzel bölüm",
	"This line stopped me cold.",
	"The pacing here is perfect.",
	"Reminds me of the opening of chapter two.",
	"Reading this on a train and the rhythm matches.",
	"Bu satırı üç kez okudum.",
}

var authorNames = []string{"Ayşe", "Deniz", "Marta", "Jonas", "Priya", "Tom"}

func main() {
	flag.Parse()

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Marginalia/data")
	}

	contentPath := filepath.Join(dataPath, "content")
	if err := seedContent(contentPath); err != nil {
		log.Fatalf("Failed to seed content: %v", err)
	}
	fmt.Printf("Seeded demo book under: %s\n", contentPath)

	library, err := content.NewLibrary(contentPath, nil)
	if err != nil {
		log.Fatalf("Failed to load content library: %v", err)
	}

	dbPath := filepath.Join(dataPath, "db")
	fmt.Printf("Opening database at: %s\n", dbPath)

	s, err := store.New(dbPath, nil, store.NewNoopEmitter())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	readerIDs := make([]string, *readers)
	for i := range readerIDs {
		readerIDs[i] = id.MustGenerate("rdr-seed")
	}

	chapters, err := library.ListChapters(demoBookID)
	if err != nil {
		log.Fatalf("Failed to list demo chapters: %v", err)
	}

	likes, comments := 0, 0
	for _, chapter := range chapters {
		likes += seedLikes(ctx, s, chapter, readerIDs)
		comments += seedComments(ctx, s, chapter, readerIDs)
	}

	// A few book-level likes as well.
	bookTarget := domain.BookTarget(demoBookID)
	for _, readerID := range readerIDs {
		if rand.Intn(2) == 0 {
			continue
		}
		if _, err := s.ToggleLike(ctx, bookTarget, readerID, domain.ActionLike); err != nil {
			log.Printf("Failed to like book: %v", err)
			continue
		}
		likes++
	}

	fmt.Printf("Done: %d likes, %d comments from %d readers\n", likes, comments, len(readerIDs))
}

// seedContent writes the demo book's chapter files.
func seedContent(root string) error {
	bookDir := filepath.Join(root, demoBookID)
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		return err
	}
	for name, body := range demoChapters {
		if err := os.WriteFile(filepath.Join(bookDir, name), []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// seedLikes scatters likes over the chapter and its non-blank lines.
func seedLikes(ctx context.Context, s *store.Store, chapter *domain.Chapter, readerIDs []string) int {
	likes := 0

	like := func(target domain.Target, readerID string) {
		if _, err := s.ToggleLike(ctx, target, readerID, domain.ActionLike); err != nil {
			log.Printf("Failed to like %s: %v", target.Key(), err)
			return
		}
		likes++
	}

	for _, readerID := range readerIDs {
		if rand.Intn(3) == 0 {
			like(domain.ChapterTarget(chapter.ID), readerID)
		}
		for _, line := range chapter.Lines {
			if line.Blank || rand.Intn(4) != 0 {
				continue
			}
			like(domain.LineTarget(chapter.ID, line.Index), readerID)
		}
	}
	return likes
}

// seedComments adds a few comments per chapter, some on lines, one reply.
func seedComments(ctx context.Context, s *store.Store, chapter *domain.Chapter, readerIDs []string) int {
	comments := 0
	var lastTopLevelID string

	for i := 0; i < 3+rand.Intn(3); i++ {
		readerID := readerIDs[rand.Intn(len(readerIDs))]
		comment := &domain.Comment{
			ChapterID:      chapter.ID,
			AuthorName:     authorNames[rand.Intn(len(authorNames))],
			AuthorReaderID: readerID,
			Body:           commentBodies[rand.Intn(len(commentBodies))],
		}

		// Roughly half the comments land on a specific line.
		if rand.Intn(2) == 0 && len(chapter.Lines) > 0 {
			for attempt := 0; attempt < 5; attempt++ {
				line := chapter.Lines[rand.Intn(len(chapter.Lines))]
				if !line.Blank {
					idx := line.Index
					comment.LineIndex = &idx
					break
				}
			}
		}

		if err := s.CreateComment(ctx, comment); err != nil {
			log.Printf("Failed to create comment: %v", err)
			continue
		}
		comments++
		lastTopLevelID = comment.ID
	}

	// One reply to the most recent comment, to exercise flat threading.
	if lastTopLevelID != "" {
		parent, err := s.GetComment(ctx, lastTopLevelID)
		if err == nil {
			reply := &domain.Comment{
				ChapterID:       parent.ChapterID,
				LineIndex:       parent.LineIndex,
				AuthorName:      authorNames[rand.Intn(len(authorNames))],
				AuthorReaderID:  readerIDs[rand.Intn(len(readerIDs))],
				Body:            "Katılıyorum, aynı yerde durdum.",
				ParentCommentID: &parent.ID,
			}
			if err := s.CreateComment(ctx, reply); err == nil {
				comments++
			}
		}
	}

	return comments
}
