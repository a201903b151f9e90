// Package discordchat adapts a Discord gateway session to chat.Platform.
package discordchat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/ca-srg/twangy/internal/chat"
)

const eventBufferSize = 64

// Intents requests guild and direct messages including their text.
const Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

// Session wraps the subset of discordgo.Session we rely on
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Platform receives Discord gateway events.
type Platform struct {
	session Session
	events  chan chat.Event
	logger  *zap.Logger

	closeOnce sync.Once
	closing   chan struct{}
	mu        sync.Mutex
	open      bool
}

// NewPlatform builds a bot session for token and verifies it against the REST
// API. A rejected token yields chat.ErrInvalidAuth.
func NewPlatform(token string, logger *zap.Logger) (*Platform, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = Intents
	// Handlers run on the gateway goroutine so events keep their arrival order.
	s.SyncEvents = true

	p := NewPlatformWithSession(s, logger)
	if err := p.verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPlatformWithSession registers handlers on an existing session (for testing)
func NewPlatformWithSession(s Session, logger *zap.Logger) *Platform {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Platform{
		session: s,
		events:  make(chan chat.Event, eventBufferSize),
		logger:  logger,
		closing: make(chan struct{}),
	}
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) { p.onReady(r) })
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) { p.onMessageCreate(m) })
	return p
}

func (p *Platform) verify() error {
	if _, err := p.session.User("@me"); err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("discord: verify token: %w", chat.ErrInvalidAuth)
		}
		return fmt.Errorf("discord: verify token: %w", err)
	}
	return nil
}

func (p *Platform) Events() <-chan chat.Event { return p.events }

// Connect opens the gateway and holds it until ctx is done.
func (p *Platform) Connect(ctx context.Context) error {
	if err := p.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-p.closing:
	}
	return nil
}

func (p *Platform) Disconnect() error {
	p.closeOnce.Do(func() { close(p.closing) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	return p.session.Close()
}

func (p *Platform) SendMessage(ctx context.Context, channelID, text string) error {
	if _, err := p.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message to %s: %w", channelID, err)
	}
	return nil
}

func (p *Platform) onReady(r *discordgo.Ready) {
	if r == nil || r.User == nil {
		p.logger.Warn("ready event without user")
		return
	}
	p.forward(chat.NewReadyEvent(chat.Identity{Name: r.User.Username, ID: r.User.ID}))
}

func (p *Platform) onMessageCreate(m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	p.forward(chat.NewMessageEvent(chat.Message{
		AuthorID:      m.Author.ID,
		AuthorName:    m.Author.Username,
		AuthorMention: m.Author.Mention(),
		Text:          m.Content,
		ChannelID:     m.ChannelID,
	}))
}

func (p *Platform) forward(ev chat.Event) {
	select {
	case p.events <- ev:
	case <-p.closing:
	}
}
