// Package config loads settings from the environment, an optional .env file
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const envPrefix = "VCHAT"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Contact is a display name configured for an address.
type Contact struct {
	Email string `mapstructure:"email"`
	Name  string `mapstructure:"name"`
}

type Config struct {
	Environment string
	Port        string
	// APIToken guards the HTTP API when set.
	APIToken string

	// Store is StorePostgres or StoreMemory.
	Store      string
	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string

	EncryptionKeyBase64   string
	GoogleCredentialsFile string
	KeyringDir            string
	KeyringPassword       string

	SyncInterval     time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	FetchConcurrency int
	FetchQPS         float64
	MaxMessages      int

	LogLevel  string
	LogPretty bool

	Contacts []Contact
}

// NewConfig reads VCHAT_* environment variables. In development a .env file
// is loaded first. VCHAT_CONFIG_FILE names an optional YAML file; the
// environment wins over it.
func NewConfig() (*Config, error) {
	env := os.Getenv("VCHAT_ENV")
	if env == "" {
		env = "development"
	}
	if env == "development" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv("VCHAT_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Environment:           env,
		Port:                  v.GetString("port"),
		APIToken:              v.GetString("api_token"),
		Store:                 strings.ToLower(v.GetString("store")),
		DBHost:                v.GetString("db.host"),
		DBPort:                v.GetString("db.port"),
		DBUsername:            v.GetString("db.user"),
		DBPassword:            v.GetString("db.password"),
		DBName:                v.GetString("db.name"),
		DBSSLMode:             v.GetString("db.sslmode"),
		EncryptionKeyBase64:   v.GetString("encryption_key_base64"),
		GoogleCredentialsFile: v.GetString("google.credentials_file"),
		KeyringDir:            v.GetString("keyring.dir"),
		KeyringPassword:       v.GetString("keyring.password"),
		SyncInterval:          v.GetDuration("sync.interval"),
		BackoffBase:           v.GetDuration("sync.backoff_base"),
		BackoffMax:            v.GetDuration("sync.backoff_max"),
		FetchConcurrency:      v.GetInt("sync.fetch_concurrency"),
		FetchQPS:              v.GetFloat64("sync.fetch_qps"),
		MaxMessages:           v.GetInt("sync.max_messages"),
		LogLevel:              v.GetString("log.level"),
		LogPretty:             v.GetBool("log.pretty"),
	}
	if err := v.UnmarshalKey("contacts", &cfg.Contacts); err != nil {
		return nil, fmt.Errorf("parsing contacts: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("api_token", "")
	v.SetDefault("store", StorePostgres)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "vchat")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "vchat")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("encryption_key_base64", "")
	v.SetDefault("google.credentials_file", "credentials.json")
	v.SetDefault("keyring.dir", "~/.config/vchat/keyring")
	v.SetDefault("keyring.password", "vchat-file-key")
	v.SetDefault("sync.interval", 10*time.Second)
	v.SetDefault("sync.backoff_base", 10*time.Second)
	v.SetDefault("sync.backoff_max", 5*time.Minute)
	v.SetDefault("sync.fetch_concurrency", 8)
	v.SetDefault("sync.fetch_qps", 10.0)
	v.SetDefault("sync.max_messages", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("VCHAT_ENCRYPTION_KEY_BASE64 is required")
	}

	switch c.Store {
	case StorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("VCHAT_DB_PASSWORD is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("VCHAT_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	if c.SyncInterval <= 0 || c.BackoffBase <= 0 {
		return fmt.Errorf("sync interval and backoff base must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("VCHAT_SYNC_BACKOFF_MAX (%s) must not be below VCHAT_SYNC_BACKOFF_BASE (%s)", c.BackoffMax, c.BackoffBase)
	}
	if c.FetchConcurrency <= 0 || c.FetchQPS <= 0 || c.MaxMessages <= 0 {
		return fmt.Errorf("fetch concurrency, fetch QPS and max messages must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid VCHAT_LOG_LEVEL: %w", err)
	}
	for _, ct := range c.Contacts {
		if ct.Email == "" {
			return fmt.Errorf("contact %q has no email", ct.Name)
		}
	}
	return nil
}

func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// ContactNames returns the configured contacts keyed by address.
func (c *Config) ContactNames() map[string]string {
	names := make(map[string]string, len(c.Contacts))
	for _, ct := range c.Contacts {
		names[strings.ToLower(strings.TrimSpace(ct.Email))] = ct.Name
	}
	return names
}
