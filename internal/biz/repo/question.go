package repo

import (
	"context"

	"github.com/beregbot/bereg/internal/biz/domain"
)

// QuestionRepo is the durable question repository interface. A record with
// an empty answer is a pending question; filling the answer resolves it
// while keeping the row as an audit trail.
type QuestionRepo interface {
	// SavePending stores a pending question, replacing any existing record
	// for the same user.
	SavePending(ctx context.Context, q *domain.PendingQuestion) error

	// FillAnswer records the delivered staff answer for a user's question.
	FillAnswer(ctx context.Context, userID, answer string) error

	// FillKeywords records the keywords the answer was committed under.
	FillKeywords(ctx context.Context, userID string, keywords []string) error

	// Delete removes the record for a user entirely (reject flow).
	Delete(ctx context.Context, userID string) error

	// ListPending returns records without answers in insertion order.
	ListPending(ctx context.Context) ([]*domain.PendingQuestion, error)

	Close() error
}
