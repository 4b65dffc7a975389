package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("repository: not found")
	ErrAlreadyExists = errors.New("repository: already exists")
	ErrConflict      = errors.New("repository: conflict")
	ErrInvalidInput  = errors.New("repository: invalid input")

	// Уточнения ErrAlreadyExists для регистрации.
	ErrUserNameTaken = fmt.Errorf("%w: user name", ErrAlreadyExists)
	ErrEmailTaken    = fmt.Errorf("%w: email", ErrAlreadyExists)
)
