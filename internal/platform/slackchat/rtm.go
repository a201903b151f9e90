package slackchat

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ca-srg/twangy/internal/chat"
)

// RTMClient abstracts slack.RTM for testability
type RTMClient interface {
	ManageConnection()
	IncomingEvents() chan slack.RTMEvent
	Disconnect() error
}

type rtmWrapper struct {
	rtm *slack.RTM
}

func (w *rtmWrapper) ManageConnection()                   { w.rtm.ManageConnection() }
func (w *rtmWrapper) IncomingEvents() chan slack.RTMEvent { return w.rtm.IncomingEvents }
func (w *rtmWrapper) Disconnect() error                   { return w.rtm.Disconnect() }

// RTMPlatform receives Slack events over the legacy real-time API.
type RTMPlatform struct {
	client SlackClient
	rtm    RTMClient
	self   chat.Identity
	events chan chat.Event
	logger *zap.Logger
}

// NewRTMPlatform verifies the bot token and prepares an RTM connection.
func NewRTMPlatform(client *slack.Client, logger *zap.Logger) (*RTMPlatform, error) {
	if client == nil {
		return nil, fmt.Errorf("slack: nil client")
	}
	self, err := identityFromAuth(client)
	if err != nil {
		return nil, err
	}
	return NewRTMPlatformWithRTM(client, &rtmWrapper{rtm: client.NewRTM()}, self, logger), nil
}

// NewRTMPlatformWithRTM allows injecting a custom RTM client and the bot
// identity (for testing)
func NewRTMPlatformWithRTM(client SlackClient, rtm RTMClient, self chat.Identity, logger *zap.Logger) *RTMPlatform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RTMPlatform{
		client: client,
		rtm:    rtm,
		self:   self,
		events: make(chan chat.Event, eventBufferSize),
		logger: logger,
	}
}

func (p *RTMPlatform) Events() <-chan chat.Event { return p.events }

func (p *RTMPlatform) SendMessage(ctx context.Context, channelID, text string) error {
	return sendText(ctx, p.client, channelID, text)
}

func (p *RTMPlatform) Disconnect() error { return p.rtm.Disconnect() }

// Connect starts RTM connection management and translates incoming events
// until ctx is done or Slack rejects the credentials.
func (p *RTMPlatform) Connect(ctx context.Context) error {
	// run RTM connection management in background; it stops on Disconnect
	go p.rtm.ManageConnection()

	incoming := p.rtm.IncomingEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-incoming:
			if !ok {
				return nil
			}
			if err := p.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (p *RTMPlatform) handleEvent(ctx context.Context, ev slack.RTMEvent) error {
	switch data := ev.Data.(type) {
	case *slack.ConnectedEvent:
		if data.Info != nil && data.Info.User != nil {
			p.self = chat.Identity{Name: data.Info.User.Name, ID: data.Info.User.ID}
		} else {
			p.logger.Warn("connected event without user details; using auth.test identity")
		}
		forward(ctx, p.events, chat.NewReadyEvent(p.self))
	case *slack.InvalidAuthEvent:
		p.logger.Error("invalid_auth: verify SLACK_BOT_TOKEN")
		return fmt.Errorf("slack: rtm: %w", chat.ErrInvalidAuth)
	case *slack.RTMError:
		p.logger.Warn("rtm_error", zap.Error(data))
	case *slack.MessageEvent:
		if data.SubType != "" { // ignore bot_message, message_changed, etc.
			return nil
		}
		forward(ctx, p.events, chat.NewMessageEvent(messageFromSlack(data.User, data.Username, data.Text, data.Channel)))
	default:
		// other events ignored
	}
	return nil
}
