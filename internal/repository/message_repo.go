package repository

import (
	"context"

	"github.com/cwrk-planet/chat/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 50
)

// MessageRepository is append-only. Failures of the medium wrap errs.ErrStorageUnavailable.
type MessageRepository interface {
	// Append assigns the next id and a UTC timestamp. Unknown author is ErrNotFound.
	Append(ctx context.Context, authorID domain.UserID, authorName, content string) (*domain.ChatMessage, error)
	// RecentHistory returns the newest limit messages ordered oldest first.
	RecentHistory(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

// ClampLimit как в пагинации: <=0 даёт дефолт, сверху ограничено.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
