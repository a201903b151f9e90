// Package slackchat adapts Slack (Socket Mode or RTM) to chat.Platform.
package slackchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/ca-srg/twangy/internal/chat"
)

const eventBufferSize = 64

// SlackClient wraps a subset of slack.Client we rely on
type SlackClient interface {
	AuthTest() (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// MentionToken renders a Slack user mention.
func MentionToken(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func identityFromAuth(client SlackClient) (chat.Identity, error) {
	auth, err := client.AuthTest()
	if err != nil {
		if isInvalidAuth(err) {
			return chat.Identity{}, fmt.Errorf("slack: auth test: %w", chat.ErrInvalidAuth)
		}
		return chat.Identity{}, fmt.Errorf("slack: auth test: %w", err)
	}
	return chat.Identity{Name: auth.User, ID: auth.UserID}, nil
}

func isInvalidAuth(err error) bool {
	var resp slack.SlackErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Err {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked":
		return true
	}
	return false
}

func sendText(ctx context.Context, client SlackClient, channelID, text string) error {
	if _, _, err := client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: post message to %s: %w", channelID, err)
	}
	return nil
}

func messageFromSlack(user, username, text, channel string) chat.Message {
	return chat.Message{
		AuthorID:      user,
		AuthorName:    username,
		AuthorMention: MentionToken(user),
		Text:          text,
		ChannelID:     channel,
	}
}

// forward delivers ev unless ctx is done first.
func forward(ctx context.Context, out chan<- chat.Event, ev chat.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
