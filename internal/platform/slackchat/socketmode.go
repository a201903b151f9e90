package slackchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/ca-srg/twangy/internal/chat"
)

// SocketRunner abstracts socketmode.Client for testability
type SocketRunner interface {
	RunContext(ctx context.Context) error
	Ack(req socketmode.Request, payload ...interface{})
	Events() <-chan socketmode.Event
}

type socketWrapper struct {
	sm *socketmode.Client
}

func (w *socketWrapper) RunContext(ctx context.Context) error { return w.sm.RunContext(ctx) }
func (w *socketWrapper) Ack(req socketmode.Request, payload ...interface{}) {
	w.sm.Ack(req, payload...)
}
func (w *socketWrapper) Events() <-chan socketmode.Event { return w.sm.Events }

// SocketPlatform receives Slack events via Socket Mode (xapp- token)
type SocketPlatform struct {
	client SlackClient
	sm     SocketRunner
	self   chat.Identity
	events chan chat.Event
	logger *zap.Logger
}

// NewSocketPlatform verifies the bot token and prepares a Socket Mode
// connection. The client must be built with slack.OptionAppLevelToken.
func NewSocketPlatform(client *slack.Client, logger *zap.Logger) (*SocketPlatform, error) {
	if client == nil {
		return nil, fmt.Errorf("slack: nil client")
	}
	self, err := identityFromAuth(client)
	if err != nil {
		return nil, err
	}
	return NewSocketPlatformWithRunner(client, &socketWrapper{sm: socketmode.New(client)}, self, logger), nil
}

// NewSocketPlatformWithRunner allows injecting the Socket Mode runner and bot
// identity (for testing)
func NewSocketPlatformWithRunner(client SlackClient, sm SocketRunner, self chat.Identity, logger *zap.Logger) *SocketPlatform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketPlatform{
		client: client,
		sm:     sm,
		self:   self,
		events: make(chan chat.Event, eventBufferSize),
		logger: logger,
	}
}

func (p *SocketPlatform) Events() <-chan chat.Event { return p.events }

func (p *SocketPlatform) SendMessage(ctx context.Context, channelID, text string) error {
	return sendText(ctx, p.client, channelID, text)
}

// Disconnect is a no-op; the websocket closes when Connect's context ends.
func (p *SocketPlatform) Disconnect() error { return nil }

// Connect runs the websocket and translates Socket Mode events until ctx is
// done or Slack rejects the credentials.
func (p *SocketPlatform) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- p.sm.RunContext(ctx) }()

	runDone := false
	defer func() {
		cancel()
		if !runDone {
			<-runErr
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			runDone = true
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("slack: socket mode: %w", err)
			}
			return nil
		case ev, ok := <-p.sm.Events():
			if !ok {
				return nil
			}
			if err := p.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (p *SocketPlatform) handleEvent(ctx context.Context, ev socketmode.Event) error {
	p.logger.Debug("socketmode event", zap.String("type", string(ev.Type)))

	switch ev.Type {
	case socketmode.EventTypeConnecting:
		p.logger.Info("connecting to Slack with Socket Mode")
	case socketmode.EventTypeConnected:
		forward(ctx, p.events, chat.NewReadyEvent(p.self))
	case socketmode.EventTypeInvalidAuth:
		p.logger.Error("invalid_auth: verify SLACK_APP_TOKEN and SLACK_BOT_TOKEN")
		return fmt.Errorf("slack: socket mode: %w", chat.ErrInvalidAuth)
	case socketmode.EventTypeConnectionError:
		p.logger.Warn("connection_error", zap.Any("data", ev.Data))
	case socketmode.EventTypeIncomingError:
		p.logger.Warn("incoming_error", zap.Any("data", ev.Data))
	case socketmode.EventTypeEventsAPI:
		// Ack first to avoid retries
		if ev.Request != nil {
			p.sm.Ack(*ev.Request)
		}
		payload, ok := ev.Data.(slackevents.EventsAPIEvent)
		if !ok || payload.Type != slackevents.CallbackEvent {
			return nil
		}
		data, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			return nil
		}
		// edits, joins and other subtypes are not conversation messages
		if data.SubType != "" {
			return nil
		}
		forward(ctx, p.events, chat.NewMessageEvent(messageFromSlack(data.User, "", data.Text, data.Channel)))
	default:
		// ignore
	}
	return nil
}
