package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/sse"
)

// Like keys:
//
//	like:{targetKey}:{readerID}  -> LikeRecord
//	likecount:{targetKey}        -> decimal total
//
// The per-target total is maintained inside the same transaction that
// touches the record, so a count never drifts from its record set.

func likeRecordKey(targetKey, readerID string) []byte {
	return []byte("like:" + targetKey + ":" + readerID)
}

func likeCountKey(targetKey string) []byte {
	return []byte("likecount:" + targetKey)
}

// ToggleLike applies an intended like action for one reader on one target.
// The action is idempotent: liking an already-liked target (or unliking an
// unliked one) leaves state untouched and reports the current status.
// The returned status is authoritative and reflects state after the action.
func (s *Store) ToggleLike(ctx context.Context, target domain.Target, readerID string, action domain.ToggleAction) (*domain.LikeStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if !action.Valid() {
		return nil, fmt.Errorf("invalid toggle action: %q", action)
	}

	targetKey := target.Key()
	recordKey := likeRecordKey(targetKey, readerID)
	countKey := likeCountKey(targetKey)

	var status domain.LikeStatus

	err := s.db.Update(func(txn *badger.Txn) error {
		total, err := readLikeCount(txn, countKey)
		if err != nil {
			return err
		}

		_, err = txn.Get(recordKey)
		liked := err == nil
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to read like record: %w", err)
		}

		switch action {
		case domain.ActionLike:
			if !liked {
				record := domain.LikeRecord{
					TargetKey: targetKey,
					ReaderID:  readerID,
					CreatedAt: time.Now().UnixMilli(),
				}
				data, err := json.Marshal(record)
				if err != nil {
					return fmt.Errorf("failed to marshal like record: %w", err)
				}
				if err := txn.Set(recordKey, data); err != nil {
					return fmt.Errorf("failed to set like record: %w", err)
				}
				total++
			}
			status = domain.LikeStatus{Total: total, IsLiked: true}

		case domain.ActionUnlike:
			if liked {
				if err := txn.Delete(recordKey); err != nil {
					return fmt.Errorf("failed to delete like record: %w", err)
				}
				total--
				if total < 0 {
					total = 0
				}
			}
			status = domain.LikeStatus{Total: total, IsLiked: false}
		}

		return txn.Set(countKey, []byte(strconv.Itoa(total)))
	})
	if err != nil {
		return nil, err
	}

	s.emit(sse.NewLikeUpdatedEvent(targetKey, status.Total))

	s.logger.Debug("like toggled",
		slog.String("target", targetKey),
		slog.String("action", string(action)),
		slog.Int("total", status.Total))

	return &status, nil
}

// GetLikeStatus returns the like total for a target and whether the given
// reader has liked it. Targets nobody has touched report a zero status.
func (s *Store) GetLikeStatus(ctx context.Context, target domain.Target, readerID string) (*domain.LikeStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	targetKey := target.Key()

	var status domain.LikeStatus
	err := s.db.View(func(txn *badger.Txn) error {
		total, err := readLikeCount(txn, likeCountKey(targetKey))
		if err != nil {
			return err
		}
		status.Total = total

		if readerID == "" {
			return nil
		}

		_, err = txn.Get(likeRecordKey(targetKey, readerID))
		if err == nil {
			status.IsLiked = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read like record: %w", err)
	})
	if err != nil {
		return nil, err
	}

	return &status, nil
}

// readLikeCount reads a like counter inside a transaction. Missing keys
// and unparseable values both count as zero.
func readLikeCount(txn *badger.Txn, key []byte) (int, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read like count: %w", err)
	}

	var total int
	err = item.Value(func(val []byte) error {
		n, err := strconv.Atoi(string(val))
		if err != nil {
			return nil
		}
		total = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}
