package domain

import (
	"cmp"
	"slices"
	"time"
)

type ChatMessage struct {
	ID       int64     `json:"id"`
	UserID   UserID    `json:"userId"`
	UserName string    `json:"userName"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

// SortChronological orders messages oldest first, ties broken by id.
func SortChronological(msgs []ChatMessage) {
	slices.SortFunc(msgs, func(a, b ChatMessage) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
