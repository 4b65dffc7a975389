package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type UserID string

func NewUserID() UserID { return UserID(uuid.NewString()) }

func (id UserID) String() string { return string(id) }

type User struct {
	ID           UserID    `json:"id"`
	UserName     string    `json:"userName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewUser ожидает уже посчитанный хеш пароля.
func NewUser(userName, email, passwordHash string, now time.Time) *User {
	return &User{
		ID:           NewUserID(),
		UserName:     strings.TrimSpace(userName),
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
	}
}

// NormalizeKey is the case-insensitive form used for uniqueness and lookup.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
