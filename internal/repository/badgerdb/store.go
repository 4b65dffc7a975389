// Package badgerdb is an embedded single-node store for running without Postgres.
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/internal/repository"
)

const (
	prefixUserID    = "user:id:"
	prefixUserName  = "user:name:"
	prefixUserEmail = "user:email:"
	prefixMessage   = "msg:"
	keyMessageSeq   = "seq:msg"

	seqBandwidth = 100
	maxTxnRetry  = 3
)

type Options struct {
	Path     string
	InMemory bool
	Log      *slog.Logger
}

type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger

	// один репозиторий на store: его мьютекс упорядочивает id и sentAt
	msgs *MessageRepo

	closeOnce sync.Once
	closeErr  error
}

func Open(opts Options) (*Store, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(slogLogger{log: log.With("component", "badger")}).
		WithLoggingLevel(badger.WARNING)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(keyMessageSeq), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("message sequence: %w", err)
	}

	s := &Store{db: db, seq: seq, log: log}
	s.msgs = newMessageRepo(s)
	return s, nil
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{s: s}
}

func (s *Store) Messages() *MessageRepo {
	return s.msgs
}

// Ping проверяет, что база открыта и читается.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", errs.ErrStorageUnavailable)
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// Close is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		// Release возвращает неиспользованный диапазон последовательности
		if err := s.seq.Release(); err != nil {
			s.log.Warn("release message sequence", slog.Any("err", err))
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// update retries optimistic-transaction conflicts before giving up.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetry; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, ctxErr)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return mapBadgerError(err)
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
	}
	return mapBadgerError(s.db.View(fn))
}

func mapBadgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrAlreadyExists),
		errors.Is(err, errs.ErrStorageUnavailable):
		return err
	case errors.Is(err, badger.ErrKeyNotFound):
		return repository.ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return repository.ErrConflict
	default:
		return fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
	}
}

// slogLogger пробрасывает внутренние логи badger в slog.
type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l slogLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l slogLogger) Infof(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l slogLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
