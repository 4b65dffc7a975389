package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/repository"
	"github.com/cwrk-planet/chat/internal/repository/queries"
)

type UserRepo struct {
	q querier
}

// NewUserRepoFromPool - конструктор от пула (*pgxpool.Pool)
func NewUserRepoFromPool(q querier) *UserRepo {
	return &UserRepo{q: q}
}

// NewUserRepoFromTx - конструктор от транзакции (pgx.Tx)
func NewUserRepoFromTx(tx pgx.Tx) *UserRepo {
	return &UserRepo{q: tx}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.q.Exec(
		ctx,
		queries.QueryCreateUser,
		u.ID.String(),
		u.UserName,
		domain.NormalizeKey(u.UserName),
		u.Email,
		domain.NormalizeKey(u.Email),
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}

	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.getOne(ctx, queries.QueryGetUserByID, id.String())
}

func (r *UserRepo) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	return r.getOne(ctx, queries.QueryGetUserByUserName, domain.NormalizeKey(userName))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, queries.QueryGetUserByEmail, domain.NormalizeKey(email))
}

func (r *UserRepo) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	return r.exists(ctx, queries.QueryExistsUserByUserName, domain.NormalizeKey(userName))
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, queries.QueryExistsUserByEmail, domain.NormalizeKey(email))
}

func (r *UserRepo) exists(ctx context.Context, sql string, arg any) (bool, error) {
	var one int
	err := r.q.QueryRow(ctx, sql, arg).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, mapPgError(err)
	}

	return true, nil
}

func (r *UserRepo) getOne(ctx context.Context, sql string, arg any) (*domain.User, error) {
	var u domain.User
	var id string

	err := r.q.QueryRow(ctx, sql, arg).Scan(
		&id,
		&u.UserName,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	u.ID = domain.UserID(id)
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}
