package repo

import "context"

// SendOptions carries per-message delivery options.
type SendOptions struct {
	// ThreadID routes the message into a topic of a group chat. Empty
	// sends to the chat root.
	ThreadID string
}

// Notifier delivers outbound messages to guests and to the staff channel.
// Implementations must not panic across this boundary; errors are returned
// for the caller to log or surface.
type Notifier interface {
	Send(ctx context.Context, recipientID, text string, opts SendOptions) error
}

// PrivilegeCheck gates staff-only actions.
type PrivilegeCheck interface {
	IsStaff(userID string) bool
}

// KeywordSuggester produces keywords for a question/answer pair when staff
// ask for automatic generation. Implementations degrade to a fixed fallback
// list rather than returning an empty set.
type KeywordSuggester interface {
	Suggest(ctx context.Context, question, answer string) ([]string, error)
}
