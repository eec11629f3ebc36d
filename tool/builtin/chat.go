package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/hupe1980/runmesh/tool"
)

// Tool names and scopes.
const (
	ChatSendTool  = "chat.send"
	ChatSendScope = "chat.write"
)

// ErrNoChatClient is returned by chat.send when no Slack client is configured.
var ErrNoChatClient = errors.New("no chat client configured")

// MessagePoster is the subset of *slack.Client used by chat.send.
type MessagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// NewSlackClient creates a Slack client for token.
func NewSlackClient(token string) *slack.Client {
	return slack.New(token)
}

// NewChatSend returns the chat.send tool. Output: {"channel", "ts"}.
// A nil poster makes every call fail with ErrNoChatClient, which the agent
// loop records as an unsuccessful tool result.
func NewChatSend(poster MessagePoster) *tool.Tool {
	return tool.MustNew(tool.Contract{
		Name:         ChatSendTool,
		Description:  "Post a message to a chat channel",
		RequiredKeys: []string{"channel", "text"},
		Scopes:       []string{ChatSendScope},
	}, func(tc *tool.ToolContext, payload map[string]any) (map[string]any, error) {
		if poster == nil {
			return nil, ErrNoChatClient
		}

		channel := fmt.Sprint(payload["channel"])
		text := fmt.Sprint(payload["text"])

		ch, ts, err := poster.PostMessageContext(tc.Context(), channel, slack.MsgOptionText(text, false))
		if err != nil {
			return nil, fmt.Errorf("post message: %w", err)
		}

		return map[string]any{"channel": ch, "ts": ts}, nil
	})
}
