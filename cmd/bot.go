package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ca-srg/twangy/internal/bot"
	"github.com/ca-srg/twangy/internal/chat"
	"github.com/ca-srg/twangy/internal/config"
	"github.com/ca-srg/twangy/internal/nlu"
	"github.com/ca-srg/twangy/internal/observability"
	"github.com/ca-srg/twangy/internal/platform/discordchat"
	"github.com/ca-srg/twangy/internal/platform/slackchat"
)

var platformFlag string

// initTelemetry is replaced in tests.
var initTelemetry = observability.Init

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Connect to the chat platform and greet anyone who says twangy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if platformFlag != "" {
			name := strings.ToLower(strings.TrimSpace(platformFlag))
			if err := config.ValidatePlatform(name); err != nil {
				return err
			}
			cfg.Platform = name
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		flush, err := initTelemetry(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		// runBot flushes from a shutdown hook; this covers the setup errors below.
		defer func() {
			if err := flush(context.Background()); err != nil {
				logger.Warn("telemetry flush failed", zap.Error(err))
			}
		}()

		understander, err := newUnderstander(ctx, cfg)
		if err != nil {
			return err
		}

		platform, err := newPlatform(cfg.Platform, logger)
		if err != nil {
			return err
		}

		return runBot(ctx, platform, understander, flush)
	},
}

func init() {
	botCmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "chat platform: slack or discord (overrides BOT_PLATFORM)")
}

// newUnderstander returns nil when no NLU key is configured.
func newUnderstander(ctx context.Context, cfg *config.Config) (nlu.Understander, error) {
	if !cfg.HasNLU() {
		logger.Info("NLU_API_KEY not set; running without an NLU client")
		return nil, nil
	}
	client, err := nlu.NewClient(ctx, nlu.Config{
		APIKey:  cfg.NLUAPIKey,
		Model:   cfg.NLUModel,
		BaseURL: cfg.NLUBaseURL,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("NLU client ready", zap.String("model", client.Model()))
	return client, nil
}

func newPlatform(name string, logger *zap.Logger) (chat.Platform, error) {
	switch name {
	case config.PlatformSlack:
		scfg, err := config.LoadSlack()
		if err != nil {
			return nil, fmt.Errorf("failed to load slack config: %w", err)
		}
		if scfg.UseSocketMode() {
			client := slack.New(scfg.BotToken, slack.OptionAppLevelToken(scfg.AppToken))
			logger.Info("Starting Slack bot (Socket Mode)")
			return slackchat.NewSocketPlatform(client, logger)
		}
		logger.Info("Starting Slack bot (RTM)")
		return slackchat.NewRTMPlatform(slack.New(scfg.BotToken), logger)
	case config.PlatformDiscord:
		dcfg, err := config.LoadDiscord()
		if err != nil {
			return nil, fmt.Errorf("failed to load discord config: %w", err)
		}
		logger.Info("Starting Discord bot")
		return discordchat.NewPlatform(dcfg.Token, logger)
	default:
		return nil, config.ValidatePlatform(name)
	}
}

func runBot(ctx context.Context, platform chat.Platform, understander nlu.Understander, flush observability.Flush) error {
	opts := []bot.Option{
		bot.WithLogger(logger),
		bot.WithErrorReporter(&bot.LogReporter{Logger: logger}),
		bot.WithShutdownHook(func() {
			if err := flush(context.Background()); err != nil {
				logger.Warn("telemetry flush failed", zap.Error(err))
			}
		}),
	}
	if understander != nil {
		opts = append(opts, bot.WithNLU(understander))
	}

	b, err := bot.New(platform, bot.NewProcessor(nil, nil), opts...)
	if err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("bot stopped: %w", err)
	}
	received, replies, errs := b.Stats()
	logger.Info("bot stopped",
		zap.Int64("received", received),
		zap.Int64("replies", replies),
		zap.Int64("errors", errs),
	)
	return nil
}
