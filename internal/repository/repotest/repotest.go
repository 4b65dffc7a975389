// Package repotest holds behaviour checks shared by every repository implementation.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/repository"
)

// Factory returns empty repositories backed by the same store.
type Factory func(t *testing.T) (repository.UserRepository, repository.MessageRepository)

func newUser(name string) *domain.User {
	return domain.NewUser(name, name+"@example.com", "$2a$10$hash", time.Now())
}

func Users(t *testing.T, factory Factory) {
	t.Run("create and lookup", func(t *testing.T) {
		r := require.New(t)
		ctx := context.Background()
		users, _ := factory(t)

		u := newUser("Alice")
		r.NoError(users.Create(ctx, u))

		byName, err := users.GetByUserName(ctx, "alice")
		r.NoError(err)
		r.Equal(u.ID, byName.ID)
		r.Equal("Alice", byName.UserName)

		byEmail, err := users.GetByEmail(ctx, "ALICE@example.com")
		r.NoError(err)
		r.Equal(u.ID, byEmail.ID)

		byID, err := users.GetByID(ctx, u.ID)
		r.NoError(err)
		r.Equal(u.PasswordHash, byID.PasswordHash)

		ok, err := users.ExistsByUserName(ctx, "ALICE")
		r.NoError(err)
		r.True(ok)
		ok, err = users.ExistsByEmail(ctx, "nobody@example.com")
		r.NoError(err)
		r.False(ok)
	})

	t.Run("duplicates", func(t *testing.T) {
		r := require.New(t)
		ctx := context.Background()
		users, _ := factory(t)

		r.NoError(users.Create(ctx, newUser("bob")))

		dupName := newUser("BOB")
		dupName.Email = "other@example.com"
		err := users.Create(ctx, dupName)
		r.ErrorIs(err, repository.ErrUserNameTaken)
		r.ErrorIs(err, repository.ErrAlreadyExists)

		dupEmail := newUser("bobby")
		dupEmail.Email = "Bob@Example.com"
		r.ErrorIs(users.Create(ctx, dupEmail), repository.ErrEmailTaken)
	})

	t.Run("not found", func(t *testing.T) {
		users, _ := factory(t)
		_, err := users.GetByUserName(context.Background(), "ghost")
		require.ErrorIs(t, err, repository.ErrNotFound)
		_, err = users.GetByID(context.Background(), domain.NewUserID())
		require.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func Messages(t *testing.T, factory Factory) {
	t.Run("append assigns increasing ids", func(t *testing.T) {
		r := require.New(t)
		ctx := context.Background()
		users, msgs := factory(t)
		u := newUser("carol")
		r.NoError(users.Create(ctx, u))

		first, err := msgs.Append(ctx, u.ID, u.UserName, "one")
		r.NoError(err)
		second, err := msgs.Append(ctx, u.ID, u.UserName, "two")
		r.NoError(err)

		r.Greater(second.ID, first.ID)
		r.Equal("carol", second.UserName)
		r.Equal(time.UTC, second.SentAt.Location())
		r.False(second.SentAt.Before(first.SentAt))
	})

	t.Run("unknown author", func(t *testing.T) {
		_, msgs := factory(t)
		_, err := msgs.Append(context.Background(), domain.NewUserID(), "ghost", "hi")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("history is newest window in ascending order", func(t *testing.T) {
		r := require.New(t)
		ctx := context.Background()
		users, msgs := factory(t)
		u := newUser("dave")
		r.NoError(users.Create(ctx, u))

		empty, err := msgs.RecentHistory(ctx, 50)
		r.NoError(err)
		r.Empty(empty)

		for i := 0; i < 60; i++ {
			_, err := msgs.Append(ctx, u.ID, u.UserName, fmt.Sprintf("m%02d", i))
			r.NoError(err)
		}

		got, err := msgs.RecentHistory(ctx, 50)
		r.NoError(err)
		r.Len(got, 50)
		r.Equal("m10", got[0].Content)
		r.Equal("m59", got[49].Content)
		assertAscending(t, got)

		few, err := msgs.RecentHistory(ctx, 3)
		r.NoError(err)
		r.Equal([]string{"m57", "m58", "m59"}, contents(few))
	})

	t.Run("concurrent appends", func(t *testing.T) {
		r := require.New(t)
		ctx := context.Background()
		users, msgs := factory(t)
		u := newUser("erin")
		r.NoError(users.Create(ctx, u))

		const n = 20
		var wg sync.WaitGroup
		ids := make(chan int64, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				m, err := msgs.Append(ctx, u.ID, u.UserName, fmt.Sprintf("c%d", i))
				if err == nil {
					ids <- m.ID
				}
			}(i)
		}
		wg.Wait()
		close(ids)

		seen := map[int64]bool{}
		for id := range ids {
			r.False(seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		r.Len(seen, n)

		got, err := msgs.RecentHistory(ctx, 50)
		r.NoError(err)
		r.Len(got, n)
		assertAscending(t, got)
	})
}

func assertAscending(t *testing.T, msgs []domain.ChatMessage) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		ordered := prev.SentAt.Before(cur.SentAt) || (prev.SentAt.Equal(cur.SentAt) && prev.ID < cur.ID)
		require.True(t, ordered, "messages %d and %d out of order", prev.ID, cur.ID)
	}
}

func contents(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
