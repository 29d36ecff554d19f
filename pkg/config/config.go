// Package config loads node configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the node. Values come from ATRIUM_*
// environment variables.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8444"`
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Per-connection admission rate
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"10"`
	RequestBurst      int     `envconfig:"REQUEST_BURST" default:"20"`

	// Undecodable units tolerated before the connection is dropped
	MalformedLimit int `envconfig:"MALFORMED_LIMIT" default:"8"`

	// Outbound frames buffered per session before it is considered stuck
	SendQueueSize int `envconfig:"SEND_QUEUE_SIZE" default:"256"`

	InviteSweepInterval time.Duration `envconfig:"INVITE_SWEEP_INTERVAL" default:"1m"`

	// Entity bounds
	MaxNameLength          int `envconfig:"MAX_NAME_LENGTH" default:"64"`
	MaxDescriptionLength   int `envconfig:"MAX_DESCRIPTION_LENGTH" default:"1024"`
	MaxMessageLength       int `envconfig:"MAX_MESSAGE_LENGTH" default:"4096"`
	MaxInvitesPerCommunity int `envconfig:"MAX_INVITES_PER_COMMUNITY" default:"100"`
}

// Load reads .env if present, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("atrium", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}
