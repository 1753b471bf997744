package lark

import (
	"context"

	"github.com/beregbot/bereg/internal/biz/repo"
)

// Notifier delivers outbound messages through the Lark client.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier over an existing client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Send delivers text to a user or chat. When a thread id is given the
// message lands in that topic instead of the chat root.
func (n *Notifier) Send(ctx context.Context, recipientID, text string, opts repo.SendOptions) error {
	if opts.ThreadID != "" {
		return n.client.ReplyInThread(ctx, opts.ThreadID, text)
	}
	return n.client.SendText(ctx, recipientID, text)
}
