package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/internal/repository"
	"github.com/cwrk-planet/chat/internal/security"
)

const userNameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+"

type RegisterInput struct {
	UserName string `validate:"required,max=256,username"`
	Email    string `validate:"required,max=256,email"`
	Password string
}

type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	users    repository.UserRepository
	tokens   *security.TokenIssuer
	policy   security.PasswordPolicy
	validate *validator.Validate
	now      func() time.Time

	// сравниваем с фиктивным хешем, чтобы неизвестный пользователь
	// отвечал так же долго, как неверный пароль
	dummyHash func() string
}

func NewAuthService(
	users repository.UserRepository,
	tokens *security.TokenIssuer,
	policy security.PasswordPolicy,
	now func() time.Time,
) *AuthService {
	if now == nil {
		now = time.Now
	}

	v := validator.New()
	if err := v.RegisterValidation("username", validUserName); err != nil {
		// ошибка программиста: тег пустой или занят встроенным правилом
		panic(fmt.Sprintf("register username validation: %v", err))
	}

	s := &AuthService{
		users:    users,
		tokens:   tokens,
		policy:   policy,
		validate: v,
		now:      now,
	}
	s.dummyHash = sync.OnceValue(func() string {
		h, _ := policy.Hash("dummy-password-0")
		return h
	})

	return s
}

func validUserName(fl validator.FieldLevel) bool {
	return strings.Trim(fl.Field().String(), userNameChars) == ""
}

// Register собирает все нарушенные правила сразу и возвращает их одним *errs.ValidationError.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.TrimSpace(in.Email)

	ve := &errs.ValidationError{}
	s.validateInput(in, ve)

	if in.UserName != "" {
		taken, err := s.users.ExistsByUserName(ctx, in.UserName)
		if err != nil {
			slog.ErrorContext(ctx, "auth.register.existsByUserName failed", slog.Any("err", err))
			return nil, err
		}
		if taken {
			ve.Add("DuplicateUserName", fmt.Sprintf("Username '%s' is already taken.", in.UserName))
		}
	}
	if in.Email != "" {
		taken, err := s.users.ExistsByEmail(ctx, in.Email)
		if err != nil {
			slog.ErrorContext(ctx, "auth.register.existsByEmail failed", slog.Any("err", err))
			return nil, err
		}
		if taken {
			ve.Add("DuplicateEmail", fmt.Sprintf("Email '%s' is already taken.", in.Email))
		}
	}

	ve.Failures = append(ve.Failures, s.policy.Check(in.Password)...)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	hash, err := s.policy.Hash(in.Password)
	if err != nil {
		slog.ErrorContext(ctx, "auth.register.hashPassword failed", slog.Any("err", err))
		return nil, err
	}

	u := domain.NewUser(in.UserName, in.Email, hash, s.now())
	if err := s.users.Create(ctx, u); err != nil {
		// гонка двух регистраций с одним именем
		switch {
		case errors.Is(err, repository.ErrUserNameTaken):
			return nil, ve.Add("DuplicateUserName", fmt.Sprintf("Username '%s' is already taken.", in.UserName))
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, ve.Add("DuplicateEmail", fmt.Sprintf("Email '%s' is already taken.", in.Email))
		}
		slog.ErrorContext(ctx, "auth.register.create failed", slog.Any("err", err))
		return nil, err
	}

	slog.InfoContext(ctx, "user registered", slog.String("user_id", u.ID.String()), slog.String("user_name", u.UserName))
	return u, nil
}

func (s *AuthService) validateInput(in RegisterInput, ve *errs.ValidationError) {
	err := s.validate.Struct(in)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		ve.Add("InvalidInput", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "UserName":
			ve.Add("InvalidUserName", fmt.Sprintf("Username '%s' is invalid, can only contain letters or digits.", in.UserName))
		case "Email":
			ve.Add("InvalidEmail", fmt.Sprintf("Email '%s' is invalid.", in.Email))
		}
	}
}

// Login принимает имя пользователя или email. Неизвестный пользователь и неверный
// пароль неразличимы для клиента.
func (s *AuthService) Login(ctx context.Context, userNameOrEmail, password string) (*LoginResult, error) {
	u, err := s.findForLogin(ctx, strings.TrimSpace(userNameOrEmail))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = security.ComparePassword(s.dummyHash(), password)
			slog.WarnContext(ctx, "auth.login unknown user")
			return nil, errs.ErrInvalidCredentials
		}
		slog.ErrorContext(ctx, "auth.login.lookup failed", slog.Any("err", err))
		return nil, err
	}

	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		slog.WarnContext(ctx, "auth.login wrong password", slog.String("user_id", u.ID.String()))
		return nil, errs.ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.ID, u.UserName)
	if err != nil {
		slog.ErrorContext(ctx, "auth.login.issueToken failed", slog.Any("err", err))
		return nil, err
	}

	return &LoginResult{User: u, Token: token, ExpiresAt: exp}, nil
}

func (s *AuthService) findForLogin(ctx context.Context, key string) (*domain.User, error) {
	if key == "" {
		return nil, repository.ErrNotFound
	}

	u, err := s.users.GetByUserName(ctx, key)
	if err == nil || !errors.Is(err, repository.ErrNotFound) || !strings.Contains(key, "@") {
		return u, err
	}

	return s.users.GetByEmail(ctx, key)
}

// Authenticate validates a bearer token. It is the single entry point for HTTP and websocket auth.
func (s *AuthService) Authenticate(token string) (domain.Identity, error) {
	return s.tokens.Validate(token)
}
