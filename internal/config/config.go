package config

import (
	"errors"
	"fmt"
	"strings"

	env "github.com/netflix/go-env"
)

const (
	PlatformSlack   = "slack"
	PlatformDiscord = "discord"
)

// ErrUnsupportedPlatform is returned for a BOT_PLATFORM value other than
// slack or discord.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Config holds process-wide settings shared by every subcommand
type Config struct {
	Platform string `env:"BOT_PLATFORM,default=slack"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// NLU backend; the bot runs without an NLU handle when the key is empty
	NLUAPIKey  string `env:"NLU_API_KEY"`
	NLUModel   string `env:"NLU_MODEL,default=gemini-2.0-flash"`
	NLUBaseURL string `env:"NLU_BASE_URL"`

	OTelEnabled              bool    `env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string  `env:"OTEL_SERVICE_NAME,default=twangy"`
	OTelExporterOTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
	OTelResourceAttributes   string  `env:"OTEL_RESOURCE_ATTRIBUTES"`
	OTelTracesSampler        string  `env:"OTEL_TRACES_SAMPLER,default=always_on"`
	OTelTracesSamplerArg     float64 `env:"OTEL_TRACES_SAMPLER_ARG,default=1.0"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Platform == "" {
		c.Platform = PlatformSlack
	}
	if err := ValidatePlatform(c.Platform); err != nil {
		return err
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.NLUAPIKey = strings.TrimSpace(c.NLUAPIKey)
	return nil
}

// ValidatePlatform reports ErrUnsupportedPlatform for unknown names.
func ValidatePlatform(name string) error {
	switch name {
	case PlatformSlack, PlatformDiscord:
		return nil
	default:
		return fmt.Errorf("BOT_PLATFORM %q: %w", name, ErrUnsupportedPlatform)
	}
}

// HasNLU reports whether an NLU key is configured.
func (c *Config) HasNLU() bool { return c.NLUAPIKey != "" }
