package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/marginaliapress/marginalia-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(os.ExpandEnv("$HOME/Marginalia/data"), "db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Engagement Database Inspection ===")
	fmt.Println()

	likeRecords := 0
	likeCounts := map[string]int{}
	commentCount := 0
	hiddenCount := 0
	replyCount := 0
	adminReplies := 0
	readerSet := map[string]struct{}{}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			switch {
			case strings.HasPrefix(key, "like:"):
				likeRecords++
				// like:{targetKey}:{readerID}; reader ids never contain ':'.
				if idx := strings.LastIndex(key, ":"); idx > 0 {
					readerSet[key[idx+1:]] = struct{}{}
				}

			case strings.HasPrefix(key, "likecount:"):
				target := strings.TrimPrefix(key, "likecount:")
				err := item.Value(func(val []byte) error {
					count := 0
					fmt.Sscanf(string(val), "%d", &count)
					likeCounts[target] = count
					return nil
				})
				if err != nil {
					log.Printf("Error reading count %s: %v", key, err)
				}

			case strings.HasPrefix(key, "comment:") && !strings.HasPrefix(key, "comment:idx:"):
				err := item.Value(func(val []byte) error {
					var c domain.Comment
					if err := json.Unmarshal(val, &c); err != nil {
						return err
					}
					commentCount++
					readerSet[c.AuthorReaderID] = struct{}{}
					if c.Hidden {
						hiddenCount++
					}
					if c.IsReply() {
						replyCount++
					}
					if c.HasAdminReply() {
						adminReplies++
					}
					return nil
				})
				if err != nil {
					log.Printf("Error reading comment %s: %v", key, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	// Show the most liked targets.
	type targetCount struct {
		target string
		count  int
	}
	top := make([]targetCount, 0, len(likeCounts))
	for target, count := range likeCounts {
		if count > 0 {
			top = append(top, targetCount{target, count})
		}
	}
	sort.Slice(top, func(i, j int) bool { return top[i].count > top[j].count })

	fmt.Println("Most liked targets:")
	for i, tc := range top {
		if i >= 10 {
			fmt.Printf("  ... and %d more targets\n", len(top)-10)
			break
		}
		fmt.Printf("  %4d  %s\n", tc.count, tc.target)
	}
	fmt.Println()

	fmt.Println("=== Summary ===")
	fmt.Printf("Like records: %d\n", likeRecords)
	fmt.Printf("Liked targets: %d\n", len(top))
	fmt.Printf("Comments: %d (%d replies, %d hidden, %d with admin reply)\n",
		commentCount, replyCount, hiddenCount, adminReplies)
	fmt.Printf("Distinct readers seen: %d\n", len(readerSet))
}
