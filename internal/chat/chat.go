// Package chat defines the platform-agnostic event model shared by the bot loop
// and the messaging platform adapters.
package chat

import (
	"context"
	"errors"
)

// ErrInvalidAuth is returned by a Platform when the messaging service rejects
// the configured credentials.
var ErrInvalidAuth = errors.New("chat: invalid credentials")

// Identity describes the bot account as seen by the platform.
type Identity struct {
	Name string
	ID   string
}

// Message is a single inbound chat message.
type Message struct {
	AuthorID   string
	AuthorName string
	// AuthorMention is the platform-specific token that renders as a
	// reference to the author, e.g. <@U123> on Slack.
	AuthorMention string
	Text          string
	ChannelID     string
}

// EventType identifies the payload carried by an Event.
type EventType string

const (
	EventTypeReady   EventType = "ready"
	EventTypeMessage EventType = "message"
)

// ReadyEvent is emitted once the session with the platform is active.
type ReadyEvent struct {
	Self Identity
}

// MessageEvent is emitted for every message the platform delivers.
type MessageEvent struct {
	Message Message
}

// Event is the envelope delivered on a Platform's event channel. Data holds a
// *ReadyEvent or a *MessageEvent.
type Event struct {
	Type EventType
	Data any
}

// NewReadyEvent wraps self in a ready Event.
func NewReadyEvent(self Identity) Event {
	return Event{Type: EventTypeReady, Data: &ReadyEvent{Self: self}}
}

// NewMessageEvent wraps msg in a message Event.
func NewMessageEvent(msg Message) Event {
	return Event{Type: EventTypeMessage, Data: &MessageEvent{Message: msg}}
}

// Sender posts text to a channel.
type Sender interface {
	SendMessage(ctx context.Context, channelID, text string) error
}

// Platform abstracts a messaging service connection.
//
// Connect runs the connection until ctx is done or a fatal error occurs
// (ErrInvalidAuth for rejected credentials). Events delivers inbound events
// in the order the platform received them.
type Platform interface {
	Sender
	Connect(ctx context.Context) error
	Events() <-chan Event
	Disconnect() error
}
