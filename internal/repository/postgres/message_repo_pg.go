package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/repository"
	"github.com/cwrk-planet/chat/internal/repository/queries"
)

type MessageRepo struct {
	q   querier
	now func() time.Time
}

func NewMessageRepoFromPool(q querier) *MessageRepo {
	return &MessageRepo{q: q, now: time.Now}
}

func (r *MessageRepo) Append(ctx context.Context, authorID domain.UserID, authorName, content string) (*domain.ChatMessage, error) {
	// timestamptz хранит микросекунды
	sentAt := r.now().UTC().Truncate(time.Microsecond)

	m := domain.ChatMessage{
		UserID:   authorID,
		UserName: authorName,
		Content:  content,
	}
	err := r.q.QueryRow(ctx, queries.QueryAppendMessage, authorID.String(), authorName, content, sentAt).
		Scan(&m.ID, &m.SentAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	m.SentAt = m.SentAt.UTC()

	return &m, nil
}

func (r *MessageRepo) RecentHistory(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	limit = repository.ClampLimit(limit)

	rows, err := r.q.Query(ctx, queries.QueryRecentMessages, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0, limit)
	for rows.Next() {
		var m domain.ChatMessage
		var userID string
		if err := rows.Scan(&m.ID, &userID, &m.UserName, &m.Content, &m.SentAt); err != nil {
			return nil, mapPgError(err)
		}
		m.UserID = domain.UserID(userID)
		m.SentAt = m.SentAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	domain.SortChronological(out)
	return out, nil
}
