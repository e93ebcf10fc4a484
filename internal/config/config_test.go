package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("VCHAT_ENV", "test")
	t.Setenv("VCHAT_ENCRYPTION_KEY_BASE64", "dGVzdC1rZXktMTIzNDU2Nzg5MDEyMzQ1Njc4OTAxMjM=")
	t.Setenv("VCHAT_DB_PASSWORD", "test-password")
}

func TestNewConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("VCHAT_DB_HOST", "db.internal")
	t.Setenv("VCHAT_DB_USER", "test-user")
	t.Setenv("VCHAT_PORT", "3000")
	t.Setenv("VCHAT_SYNC_INTERVAL", "30s")
	t.Setenv("VCHAT_SYNC_FETCH_QPS", "2.5")
	t.Setenv("VCHAT_LOG_PRETTY", "true")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, "test-user", cfg.DBUsername)
	assert.Equal(t, "test-password", cfg.DBPassword)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 2.5, cfg.FetchQPS)
	assert.True(t, cfg.LogPretty)
}

func TestNewConfigWithDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "vchat", cfg.DBName)
	assert.Equal(t, "disable", cfg.DBSSLMode)
	assert.Equal(t, "credentials.json", cfg.GoogleCredentialsFile)
	assert.Equal(t, 10*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.BackoffMax)
	assert.Equal(t, 8, cfg.FetchConcurrency)
	assert.Equal(t, 10.0, cfg.FetchQPS)
	assert.Equal(t, 100, cfg.MaxMessages)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Contacts)
}

func TestNewConfigFile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "vchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
sync:
  max_messages: 250
contacts:
  - email: Bob@Example.com
    name: Bobby
  - email: amy@example.com
    name: Amy
`), 0o600))
	t.Setenv("VCHAT_CONFIG_FILE", path)
	t.Setenv("VCHAT_PORT", "3000")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port, "environment wins over the file")
	assert.Equal(t, 250, cfg.MaxMessages)
	require.Len(t, cfg.Contacts, 2)
	assert.Equal(t, map[string]string{"bob@example.com": "Bobby", "amy@example.com": "Amy"}, cfg.ContactNames())
}

func TestNewConfigMissingFile(t *testing.T) {
	setRequired(t)
	t.Setenv("VCHAT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := NewConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:               StorePostgres,
			EncryptionKeyBase64: "key",
			DBPassword:          "pw",
			SyncInterval:        time.Second,
			BackoffBase:         time.Second,
			BackoffMax:          time.Minute,
			FetchConcurrency:    1,
			FetchQPS:            1,
			MaxMessages:         1,
			LogLevel:            "debug",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing encryption key", func(c *Config) { c.EncryptionKeyBase64 = "" }, "VCHAT_ENCRYPTION_KEY_BASE64"},
		{"missing db password", func(c *Config) { c.DBPassword = "" }, "VCHAT_DB_PASSWORD"},
		{"memory store needs no db", func(c *Config) { c.Store, c.DBPassword = StoreMemory, "" }, ""},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, "VCHAT_STORE"},
		{"backoff max below base", func(c *Config) { c.BackoffMax = time.Millisecond }, "VCHAT_SYNC_BACKOFF_MAX"},
		{"zero concurrency", func(c *Config) { c.FetchConcurrency = 0 }, "must be positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "VCHAT_LOG_LEVEL"},
		{"contact without email", func(c *Config) { c.Contacts = []Contact{{Name: "Bob"}} }, "no email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBHost:     "localhost",
		DBPort:     "5432",
		DBUsername: "vchat",
		DBPassword: "p@ss word",
		DBName:     "vchat",
		DBSSLMode:  "disable",
	}

	u, err := url.Parse(cfg.GetDatabaseURL())
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "localhost:5432", u.Host)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "/vchat", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}
