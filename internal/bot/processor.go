package bot

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ca-srg/twangy/internal/chat"
)

var botTracer = otel.Tracer("twangy/bot")

// Processor decides whether a message gets a reply and builds it.
type Processor struct {
	detector *TriggerDetector
	format   *Formatter
}

func NewProcessor(detector *TriggerDetector, formatter *Formatter) *Processor {
	if detector == nil {
		detector = &TriggerDetector{}
	}
	if formatter == nil {
		formatter = &Formatter{}
	}
	return &Processor{detector: detector, format: formatter}
}

// Reply is a transport-agnostic response sent by the bot loop.
type Reply struct {
	ChannelID string
	Text      string
}

// ProcessMessage returns the greeting for msg, or nil when the bot should stay
// silent. Messages written by self never get a reply.
func (p *Processor) ProcessMessage(ctx context.Context, self chat.Identity, msg *chat.Message) *Reply {
	if msg == nil {
		return nil
	}
	if self.ID != "" && msg.AuthorID == self.ID {
		return nil
	}
	if !p.detector.IsTriggered(msg.Text) {
		return nil
	}

	_, span := botTracer.Start(ctx, "bot.process_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.channel_id", msg.ChannelID),
		attribute.String("chat.author_id", msg.AuthorID),
	)

	return &Reply{
		ChannelID: msg.ChannelID,
		Text:      p.format.BuildGreeting(msg.AuthorMention),
	}
}
