package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults for missing keys", func(t *testing.T) {
		path := writeConfig(t, `
[database]
driver = "sqlite"
dsn = "santa.db"

[jwt]
secret = "s3cret"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "memory", cfg.Session.Store)
		assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
		assert.Equal(t, "websocket", cfg.Notify.Sink)
		assert.Equal(t, 5*time.Second, cfg.Notify.Timeout)
		assert.Equal(t, "santa.notifications", cfg.Kafka.Topics.Outbound)
	})

	t.Run("parses durations and client list", func(t *testing.T) {
		path := writeConfig(t, `
[database]
driver = "postgres"

[session]
ttl = "5m"

[notify]
timeout = "250ms"

[jwt]
secret = "s3cret"

[[auth.clients]]
name = "bridge"
role = "bridge"
secret_hash = "hash"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
		assert.Equal(t, 250*time.Millisecond, cfg.Notify.Timeout)
		require.Len(t, cfg.Auth.Clients, 1)
		assert.Equal(t, "bridge", cfg.Auth.Clients[0].Role)
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		path := writeConfig(t, `
[database]
driver = "sqlite"
dsn = "file.db"

[jwt]
secret = "s3cret"
`)
		t.Setenv("SANTA_DATABASE_DSN", "env.db")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.Database.DSN)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite"},
			Session:  SessionConfig{Store: "memory"},
			Notify:   NotifyConfig{Sink: "websocket"},
			JWT:      JWTConfig{Secret: "x"},
		}
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cases := map[string]func(c *Config){
		"unknown driver":          func(c *Config) { c.Database.Driver = "mysql" },
		"redis session w/o redis": func(c *Config) { c.Session.Store = "redis" },
		"kafka sink w/o kafka":    func(c *Config) { c.Notify.Sink = "kafka" },
		"ratelimit w/o redis":     func(c *Config) { c.RateLimit.Enabled = true },
		"empty jwt secret":        func(c *Config) { c.JWT.Secret = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
