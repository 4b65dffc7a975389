package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	r := require.New(t)
	wd, wdErr := os.Getwd()
	r.NoError(wdErr)
	r.NoError(os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := config.Load()
	r.NoError(err)
	r.Equal(config.DriverPostgres, cfg.Storage.Driver)
	r.Equal(12*time.Hour, cfg.Security.JWT.AccessTTL)
	r.Equal("chat-app", cfg.Security.JWT.Issuer)
	r.Equal(50, cfg.Chat.HistoryLimit)
	r.Equal([]string{config.DevOrigin}, cfg.CORS.AllowedOrigins)
	r.True(cfg.UsesDevSecrets())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	r := require.New(t)
	path := writeFile(t, `
http:
  addr: ":9999"
storage:
  driver: badger
  timeout: 2s
badger:
  inMemory: true
cors:
  allowedOrigins: ["https://chat.example.com/"]
security:
  jwt:
    key: yaml-key-yaml-key-yaml-key-yaml-key-1234
    accessTTL: 1h
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CHAT_SECURITY_JWT_KEY", "env-key-env-key-env-key-env-key-env-key!")
	t.Setenv("CHAT_CHAT_HISTORY_REQUIRES_AUTH", "false")

	cfg, err := config.Load()
	r.NoError(err)
	r.Equal(":9999", cfg.HTTP.Addr)
	r.Equal(config.DriverBadger, cfg.Storage.Driver)
	r.Equal(2*time.Second, cfg.Storage.Timeout)
	r.True(cfg.Badger.InMemory)
	r.Equal([]string{"https://chat.example.com"}, cfg.CORS.AllowedOrigins)
	r.Equal("env-key-env-key-env-key-env-key-env-key!", cfg.Security.JWT.Key)
	r.Equal(time.Hour, cfg.Security.JWT.AccessTTL)
	r.False(cfg.Chat.HistoryRequiresAuth)
	r.False(cfg.UsesDevSecrets())
	// untouched keys keep defaults
	r.Equal("chat-app", cfg.Security.JWT.Audience)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := config.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"short key", func(c *config.Config) { c.Security.JWT.Key = "short" }},
		{"unknown driver", func(c *config.Config) { c.Storage.Driver = "mysql" }},
		{"badger without path", func(c *config.Config) {
			c.Storage.Driver = config.DriverBadger
			c.Badger.Path = ""
		}},
		{"history limit", func(c *config.Config) { c.Chat.HistoryLimit = 500 }},
		{"history limit above 50", func(c *config.Config) { c.Chat.HistoryLimit = 51 }},
		{"frame smaller than message", func(c *config.Config) { c.Chat.MaxFrameBytes = 16 << 10 }},
		{"frame too small for longer messages", func(c *config.Config) { c.Chat.MaxMessageLength = 10000 }},
		{"ping after pong", func(c *config.Config) { c.Chat.PingInterval = time.Minute }},
		{"no issuer", func(c *config.Config) { c.Security.JWT.Issuer = "" }},
		{"zero ttl", func(c *config.Config) { c.Security.JWT.AccessTTL = 0 }},
		{"bcrypt cost", func(c *config.Config) { c.Security.Password.BcryptCost = 40 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, config.Default().Validate())
}
