package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
)

// MinKeyLength is the shortest HMAC key accepted for HS256 (256 bit).
const MinKeyLength = 32

// Используется SigningMethodHS256, ключ общий для выпуска и проверки.
type TokenIssuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

type AccessClaims struct {
	jwt.RegisteredClaims
	UniqueName string `json:"unique_name"`
	UID        string `json:"uid"`
}

func NewTokenIssuer(key []byte, issuer, audience string, ttl time.Duration) (*TokenIssuer, error) {
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeyLength, len(key))
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	return &TokenIssuer{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// WithClock подменяет часы, нужно тестам.
func (s *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *s
	cp.now = now
	return &cp
}

func (s *TokenIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue выпускает JWT с sub=uid=userID, unique_name=userName и exp=now+ttl.
func (s *TokenIssuer) Issue(userID domain.UserID, userName string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UniqueName: userName,
		UID:        userID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, claims.ExpiresAt.Time, nil
}

// Validate проверяет подпись, издателя, аудиторию и срок без допуска на часы.
func (s *TokenIssuer) Validate(tokenStr string) (domain.Identity, error) {
	if tokenStr == "" {
		return domain.Identity{}, reject(errs.ErrMissingToken)
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) {
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.Identity{}, reject(classify(err))
	}

	userID := claims.UID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" || claims.UniqueName == "" {
		return domain.Identity{}, reject(errs.ErrInvalidSubject)
	}

	return domain.Identity{
		UserID:    domain.UserID(userID),
		UserName:  claims.UniqueName,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func reject(reason error) error {
	return fmt.Errorf("%w: %w", errs.ErrAuthenticationRejected, reason)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return errs.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errs.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errs.ErrInvalidIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return errs.ErrInvalidAudience
	default:
		return errs.ErrInvalidToken
	}
}
