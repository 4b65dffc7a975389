package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/repository"
)

// MessageRepo keys messages as msg:{id zero-padded to 19 digits}, so key order is id order.
// Appends are serialized and timestamps never go backwards, which keeps id order equal
// to (sentAt, id) order.
type MessageRepo struct {
	s   *Store
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func newMessageRepo(s *Store) *MessageRepo {
	return &MessageRepo{s: s, now: time.Now}
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d", prefixMessage, id))
}

func (r *MessageRepo) Append(ctx context.Context, authorID domain.UserID, authorName, content string) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sentAt := r.now().UTC()
	if sentAt.Before(r.last) {
		sentAt = r.last
	}

	m := domain.ChatMessage{
		UserID:   authorID,
		UserName: authorName,
		Content:  content,
		SentAt:   sentAt,
	}

	err := r.s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixUserID + authorID.String())); err != nil {
			return err
		}

		// Sequence начинается с 0, id начинаем с 1 как BIGSERIAL
		n, err := r.s.seq.Next()
		if err != nil {
			return err
		}
		m.ID = int64(n) + 1

		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(m.ID), data)
	})
	if err != nil {
		return nil, err
	}

	r.last = sentAt
	return &m, nil
}

// RecentHistory идёт обратным итератором от конца префикса, как курсорная выборка.
func (r *MessageRepo) RecentHistory(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	limit = repository.ClampLimit(limit)
	out := make([]domain.ChatMessage, 0, limit)

	err := r.s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixMessage)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(prefixMessage), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var m domain.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	domain.SortChronological(out)
	return out, nil
}
