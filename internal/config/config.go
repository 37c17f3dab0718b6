// Package config loads the roomchat client configuration from the
// environment. Every variable carries the ROOMCHAT_ prefix; a .env file in
// the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "ROOMCHAT"

// Transport names accepted in Config.Transport.
const (
	TransportWS   = "ws"
	TransportNATS = "nats"
)

// Config is the client configuration. Durations use time.ParseDuration
// syntax, e.g. ROOMCHAT_TYPING_WINDOW=1500ms.
type Config struct {
	Transport string `envconfig:"TRANSPORT" default:"ws" validate:"oneof=ws nats"`
	RelayURL  string `envconfig:"RELAY_URL" default:"ws://localhost:3001/ws" validate:"required_if=Transport ws,omitempty,url"`
	NATSURL   string `envconfig:"NATS_URL" default:"nats://localhost:4222" validate:"required_if=Transport nats"`
	ClientID  string `envconfig:"CLIENT_ID"`

	// Room and Username join on startup when both are set.
	Room     string `envconfig:"ROOM" validate:"max=128"`
	Username string `envconfig:"USERNAME" validate:"max=64"`

	TypingWindow   time.Duration `envconfig:"TYPING_WINDOW" default:"1500ms" validate:"gt=0"`
	TypingThrottle time.Duration `envconfig:"TYPING_THROTTLE" default:"1s" validate:"gte=0"`

	DialTimeout       time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s" validate:"gt=0"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s" validate:"gt=0"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s" validate:"gte=0"`
	HeartbeatTimeout  time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"10s" validate:"gte=0"`

	// RedisAddr moves typing throttling into Redis; empty keeps it in process.
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	Colours bool `envconfig:"COLOURS" default:"true"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env (if any) and the ROOMCHAT_* environment into a validated
// Config.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without touching .env.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AutoJoin reports whether a room and username were configured.
func (c Config) AutoJoin() bool {
	return c.Room != "" && c.Username != ""
}
