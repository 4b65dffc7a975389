package badgerdb

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/repository"
)

// UserRepo хранит пользователя под user:id:{id}, плюс два индекса на id
// по нормализованным имени и email.
type UserRepo struct {
	s *Store
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	nameKey := []byte(prefixUserName + domain.NormalizeKey(u.UserName))
	emailKey := []byte(prefixUserEmail + domain.NormalizeKey(u.Email))

	return r.s.update(ctx, func(txn *badger.Txn) error {
		if ok, err := exists(txn, nameKey); err != nil || ok {
			return orErr(err, repository.ErrUserNameTaken)
		}
		if ok, err := exists(txn, emailKey); err != nil || ok {
			return orErr(err, repository.ErrEmailTaken)
		}
		if err := txn.Set([]byte(prefixUserID+u.ID.String()), data); err != nil {
			return err
		}
		if err := txn.Set(nameKey, []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(u.ID))
	})
}

func (r *UserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := r.s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixUserID+id.String()), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	return r.byIndex(ctx, prefixUserName+domain.NormalizeKey(userName))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.byIndex(ctx, prefixUserEmail+domain.NormalizeKey(email))
}

func (r *UserRepo) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	return r.indexExists(ctx, prefixUserName+domain.NormalizeKey(userName))
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.indexExists(ctx, prefixUserEmail+domain.NormalizeKey(email))
}

func (r *UserRepo) byIndex(ctx context.Context, key string) (*domain.User, error) {
	var u domain.User
	err := r.s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, append([]byte(prefixUserID), id...), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) indexExists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.s.view(ctx, func(txn *badger.Txn) error {
		var err error
		ok, err = exists(txn, []byte(key))
		return err
	})
	return ok, err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func orErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
