package security

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/cwrk-planet/chat/internal/errs"
)

// bcrypt игнорирует всё после 72 байт, поэтому длиннее не принимаем.
const maxPasswordBytes = 72

type PasswordPolicy struct {
	MinLength        int  `yaml:"minLength"`
	RequireDigit     bool `yaml:"requireDigit"`
	RequireLowercase bool `yaml:"requireLowercase"`
	RequireUppercase bool `yaml:"requireUppercase"`
	RequireNonAlnum  bool `yaml:"requireNonAlphanumeric"`
	BcryptCost       int  `yaml:"bcryptCost"`
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        6,
		RequireDigit:     true,
		RequireLowercase: true,
		BcryptCost:       bcrypt.DefaultCost,
	}
}

// Check returns every rule the password breaks, in a stable order.
func (p PasswordPolicy) Check(plain string) []errs.Failure {
	var out []errs.Failure

	if len([]rune(plain)) < p.MinLength {
		out = append(out, errs.Failure{
			Code:        "PasswordTooShort",
			Description: fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength),
		})
	}
	if len(plain) > maxPasswordBytes {
		out = append(out, errs.Failure{
			Code:        "PasswordTooLong",
			Description: fmt.Sprintf("Passwords must be at most %d bytes.", maxPasswordBytes),
		})
	}

	var digit, lower, upper, other bool
	for _, r := range plain {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			other = true
		}
	}

	if p.RequireNonAlnum && !other {
		out = append(out, errs.Failure{Code: "PasswordRequiresNonAlphanumeric", Description: "Passwords must have at least one non alphanumeric character."})
	}
	if p.RequireDigit && !digit {
		out = append(out, errs.Failure{Code: "PasswordRequiresDigit", Description: "Passwords must have at least one digit ('0'-'9')."})
	}
	if p.RequireLowercase && !lower {
		out = append(out, errs.Failure{Code: "PasswordRequiresLower", Description: "Passwords must have at least one lowercase ('a'-'z')."})
	}
	if p.RequireUppercase && !upper {
		out = append(out, errs.Failure{Code: "PasswordRequiresUpper", Description: "Passwords must have at least one uppercase ('A'-'Z')."})
	}

	return out
}

// Hash не проверяет политику, это делает вызывающий через Check.
func (p PasswordPolicy) Hash(plain string) (string, error) {
	cost := p.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
