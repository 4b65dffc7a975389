package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgconn "github.com/jackc/pgx/v5/pgconn"

	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/internal/repository"
	"github.com/cwrk-planet/chat/internal/repository/queries"
)

/*
абстрактный слой над *pgxpool.Pool / pgx.Tx
чтобы запросы можно было делать атомарно а не по одному
*/
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// mapPgError переводит ошибки драйвера в ошибки репозитория.
// Всё, что не распознано, считается недоступностью хранилища.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			switch pgErr.ConstraintName {
			case queries.ConstraintUserName:
				return repository.ErrUserNameTaken
			case queries.ConstraintEmail:
				return repository.ErrEmailTaken
			}
			return repository.ErrAlreadyExists
		case codeForeignKeyViolation:
			return repository.ErrNotFound
		}
	}

	return fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
}
