// Package bot runs the greeting bot on top of a chat.Platform.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ca-srg/twangy/internal/chat"
	"github.com/ca-srg/twangy/internal/nlu"
)

// Bot encapsulates the event loop and message processing
type Bot struct {
	platform      chat.Platform
	processor     *Processor
	format        *Formatter
	logger        *zap.Logger
	stdout        io.Writer
	nlu           nlu.Understander
	self          chat.Identity
	readyOnce     sync.Once
	shutdownHooks []func()
	metrics       Metrics
	reporter      ErrorReporter
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(b *Bot) { b.logger = l } }

// WithStdout sets where ready diagnostics are printed. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option { return func(b *Bot) { b.stdout = w } }

// WithNLU hands the bot an NLU client. The greeting path does not use it.
func WithNLU(u nlu.Understander) Option { return func(b *Bot) { b.nlu = u } }

// WithErrorReporter sets the reporter for failed sends.
func WithErrorReporter(r ErrorReporter) Option { return func(b *Bot) { b.reporter = r } }

// WithShutdownHook registers fn to run after the platform disconnects.
func WithShutdownHook(fn func()) Option {
	return func(b *Bot) { b.shutdownHooks = append(b.shutdownHooks, fn) }
}

// New constructs a Bot for platform.
func New(platform chat.Platform, processor *Processor, opts ...Option) (*Bot, error) {
	if platform == nil {
		return nil, fmt.Errorf("bot: nil platform")
	}
	if processor == nil {
		processor = NewProcessor(nil, nil)
	}
	b := &Bot{
		platform:  platform,
		processor: processor,
		format:    &Formatter{},
		logger:    zap.NewNop(),
		stdout:    os.Stdout,
		reporter:  &noopReporter{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.reporter == nil {
		b.reporter = &noopReporter{}
	}
	return b, nil
}

// NLU returns the NLU client handed to the bot, or nil.
func (b *Bot) NLU() nlu.Understander { return b.nlu }

// Self returns the identity received with the ready event.
func (b *Bot) Self() chat.Identity { return b.self }

// Stats returns a snapshot of the in-process counters.
func (b *Bot) Stats() (received, replies, errs int64) {
	return b.metrics.Received.Load(), b.metrics.Replies.Load(), b.metrics.Errors.Load()
}

// Start connects the platform and handles events until ctx is done or the
// connection fails. A cancelled ctx is a clean shutdown and returns nil.
func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.platform.Connect(gctx)
	})
	g.Go(func() error {
		// A closed event stream ends the session.
		defer cancel()
		return b.run(gctx)
	})
	err := g.Wait()

	if derr := b.platform.Disconnect(); derr != nil {
		b.logger.Warn("disconnect failed", zap.Error(derr))
	}
	for _, h := range b.shutdownHooks {
		h()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (b *Bot) run(ctx context.Context) error {
	events := b.platform.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				b.logger.Info("event stream closed")
				return nil
			}
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev chat.Event) {
	logger := b.logger.With(zap.String("event_id", uuid.NewString()), zap.String("event_type", string(ev.Type)))
	logger.Debug("handleEvent")

	switch data := ev.Data.(type) {
	case *chat.ReadyEvent:
		if err := b.handleReady(data); err != nil {
			logger.Error("ready handler failed", zap.Error(err))
		}
	case *chat.MessageEvent:
		if err := b.handleMessage(ctx, &data.Message); err != nil {
			logger.Error("message handler failed",
				zap.String("channel", data.Message.ChannelID),
				zap.Error(err),
			)
		}
	default:
		// other events ignored
	}
}

// handleReady runs on every (re)connect. The identity is printed only for
// the first session.
func (b *Bot) handleReady(ev *chat.ReadyEvent) error {
	b.self = ev.Self
	b.logger.Info("session ready", zap.String("name", ev.Self.Name), zap.String("id", ev.Self.ID))

	var err error
	b.readyOnce.Do(func() {
		err = b.format.WriteIdentity(b.stdout, ev.Self.Name, ev.Self.ID)
	})
	return err
}

func (b *Bot) handleMessage(ctx context.Context, msg *chat.Message) error {
	b.metrics.RecordReceived()
	attrs := []attribute.KeyValue{attribute.String("chat.channel_id", msg.ChannelID)}
	recordReceived(ctx, attrs)

	start := time.Now()
	reply := b.processor.ProcessMessage(ctx, b.self, msg)
	if reply == nil {
		return nil
	}

	ctx, span := botTracer.Start(ctx, "bot.send_reply")
	defer span.End()
	span.SetAttributes(attrs...)

	if err := b.platform.SendMessage(ctx, reply.ChannelID, reply.Text); err != nil {
		b.metrics.RecordError()
		recordReply(ctx, attrs, time.Since(start), true)
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		b.reporter.Report(err, map[string]string{"channel": reply.ChannelID})
		return fmt.Errorf("send reply: %w", err)
	}

	elapsed := time.Since(start)
	b.metrics.RecordReply(elapsed)
	recordReply(ctx, attrs, elapsed, false)
	return nil
}
