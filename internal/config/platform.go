package config

import (
	env "github.com/netflix/go-env"
)

// SlackConfig holds Slack-related settings
type SlackConfig struct {
	BotToken string `env:"SLACK_BOT_TOKEN,required=true"`
	// App-level token for Socket Mode (xapp-)
	AppToken string `env:"SLACK_APP_TOKEN,required=false"`
	// Enable Socket Mode when true (requires AppToken)
	SocketMode bool `env:"SLACK_SOCKET_MODE,default=false"`
}

// LoadSlack loads Slack configuration from environment variables
func LoadSlack() (*SlackConfig, error) {
	var cfg SlackConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, err
	}
	// If AppToken is present but SocketMode is not explicitly set, enable Socket Mode automatically
	if cfg.AppToken != "" && !cfg.SocketMode {
		cfg.SocketMode = true
	}
	return &cfg, nil
}

// UseSocketMode reports whether Socket Mode can be used.
func (c *SlackConfig) UseSocketMode() bool {
	return c.SocketMode && c.AppToken != ""
}

// DiscordConfig holds Discord-related settings
type DiscordConfig struct {
	Token string `env:"DISCORD_TOKEN,required=true"`
}

// LoadDiscord loads Discord configuration from environment variables
func LoadDiscord() (*DiscordConfig, error) {
	var cfg DiscordConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
