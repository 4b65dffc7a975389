package security_test

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/internal/security"
)

func codes(fs []errs.Failure) []string {
	return lo.Map(fs, func(f errs.Failure, _ int) string { return f.Code })
}

func TestPasswordPolicy_Check(t *testing.T) {
	p := security.DefaultPasswordPolicy()

	cases := []struct {
		name     string
		password string
		want     []string
	}{
		{"ok", "secret1", nil},
		{"too short", "ab1", []string{"PasswordTooShort"}},
		{"no digit", "secrets", []string{"PasswordRequiresDigit"}},
		{"no lowercase", "SECRET1", []string{"PasswordRequiresLower"}},
		{"empty", "", []string{"PasswordTooShort", "PasswordRequiresDigit", "PasswordRequiresLower"}},
		{"too long", strings.Repeat("a1", 40), []string{"PasswordTooLong"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := codes(p.Check(tc.password))
			if tc.want == nil {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPasswordPolicy_StrictRules(t *testing.T) {
	p := security.PasswordPolicy{MinLength: 8, RequireUppercase: true, RequireNonAlnum: true}
	require.Equal(t,
		[]string{"PasswordTooShort", "PasswordRequiresNonAlphanumeric", "PasswordRequiresUpper"},
		codes(p.Check("abc")),
	)
	require.Empty(t, p.Check("Abcdefg!"))
}

func TestHashAndCompare(t *testing.T) {
	r := require.New(t)
	p := security.DefaultPasswordPolicy()
	p.BcryptCost = bcrypt.MinCost

	hash, err := p.Hash("secret1")
	r.NoError(err)
	r.NotEqual("secret1", hash)

	r.NoError(security.ComparePassword(hash, "secret1"))
	r.Error(security.ComparePassword(hash, "secret2"))
}
