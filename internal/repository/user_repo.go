package repository

import (
	"context"

	"github.com/cwrk-planet/chat/internal/domain"
)

// UserRepository compares user names and emails case-insensitively.
type UserRepository interface {
	// Create fails with ErrUserNameTaken or ErrEmailTaken on duplicates.
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUserName(ctx context.Context, userName string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByUserName(ctx context.Context, userName string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
