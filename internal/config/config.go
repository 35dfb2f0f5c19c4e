// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/nfrund/huddle/internal/database"
	"github.com/nfrund/huddle/internal/logstore"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HUDDLE"

// Config holds all configuration for the application.
type Config struct {
	Addr      string `envconfig:"ADDR" default:":3000" validate:"required"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"debug" validate:"oneof=debug info warn error"`

	SessionSecret   string   `envconfig:"SESSION_SECRET"`
	AdminIdentities []string `envconfig:"ADMIN_IDENTITIES" default:"admin"`
	AdminFile       string   `envconfig:"ADMIN_FILE"`
	RequireAuth     bool     `envconfig:"REQUIRE_AUTH" default:"false"`
	BcryptCost      int      `envconfig:"BCRYPT_COST" default:"10" validate:"min=4,max=31"`

	LogBackend string `envconfig:"LOG_BACKEND" default:"file" validate:"oneof=file badger surreal memory"`
	LogFile    string `envconfig:"LOG_FILE" default:"data/messages.json" validate:"required_if=LogBackend file"`
	BadgerDir  string `envconfig:"BADGER_DIR" default:"data/badger" validate:"required_if=LogBackend badger"`

	SurrealURL  string `envconfig:"SURREAL_URL" validate:"required_if=LogBackend surreal"`
	SurrealNS   string `envconfig:"SURREAL_NS" default:"huddle" validate:"required_if=LogBackend surreal"`
	SurrealDB   string `envconfig:"SURREAL_DB" default:"huddle" validate:"required_if=LogBackend surreal"`
	SurrealUser string `envconfig:"SURREAL_USER"`
	SurrealPass string `envconfig:"SURREAL_PASS"`

	UploadDir        string   `envconfig:"UPLOAD_DIR" default:"uploads" validate:"required"`
	MaxUploadSize    int64    `envconfig:"MAX_UPLOAD_SIZE" default:"5242880" validate:"gt=0"`
	AllowedMIMETypes []string `envconfig:"ALLOWED_MIME_TYPES" default:"image/png,image/jpeg,image/gif,image/webp" validate:"min=1"`

	SendBuffer      int           `envconfig:"SEND_BUFFER" default:"256" validate:"gt=0"`
	MaxFrameSize    int64         `envconfig:"MAX_FRAME_SIZE" default:"65536" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// Load reads an optional .env file and then the HUDDLE_* environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv populates a Config from the environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and backend-specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LogStore returns the durable log backend settings.
func (c *Config) LogStore() logstore.Settings {
	return logstore.Settings{
		Backend:   c.LogBackend,
		File:      c.LogFile,
		BadgerDir: c.BadgerDir,
		Surreal: database.Settings{
			URL:       c.SurrealURL,
			Namespace: c.SurrealNS,
			Database:  c.SurrealDB,
			User:      c.SurrealUser,
			Pass:      c.SurrealPass,
		},
	}
}
