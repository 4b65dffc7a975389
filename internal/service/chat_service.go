package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/internal/repository"
)

type ChatConfig struct {
	MaxMessageLength int
	HistoryLimit     int
	StorageTimeout   time.Duration
}

type ChatService struct {
	messages repository.MessageRepository
	cfg      ChatConfig
}

func NewChatService(messages repository.MessageRepository, cfg ChatConfig) *ChatService {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 4000
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	cfg.HistoryLimit = repository.ClampLimit(cfg.HistoryLimit)

	return &ChatService{messages: messages, cfg: cfg}
}

// Send validates and persists one message on behalf of author.
// The write is detached from ctx cancellation so a sender that disconnects
// mid-write cannot leave a committed message unbroadcast.
func (s *ChatService) Send(ctx context.Context, author domain.Identity, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", errs.ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(content); n > s.cfg.MaxMessageLength {
		return nil, fmt.Errorf("%w: content is %d characters, limit %d", errs.ErrInvalidMessage, n, s.cfg.MaxMessageLength)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StorageTimeout)
	defer cancel()

	msg, err := s.messages.Append(ctx, author.UserID, author.UserName, content)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown author %s", errs.ErrAuthenticationRejected, author.UserID)
		}
		if !errors.Is(err, errs.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
		}
		slog.ErrorContext(ctx, "chat.send.append failed", slog.String("user_id", author.UserID.String()), slog.Any("err", err))
		return nil, err
	}

	return msg, nil
}

// History returns the configured window of recent messages, oldest first.
func (s *ChatService) History(ctx context.Context) ([]domain.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	msgs, err := s.messages.RecentHistory(ctx, s.cfg.HistoryLimit)
	if err != nil {
		if !errors.Is(err, errs.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
		}
		slog.ErrorContext(ctx, "chat.history failed", slog.Any("err", err))
		return nil, err
	}

	return msgs, nil
}
