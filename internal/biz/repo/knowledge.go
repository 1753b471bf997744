package repo

import (
	"context"

	"github.com/beregbot/bereg/internal/biz/domain"
)

// KnowledgeRepo is the durable knowledge-base repository interface.
// The store is append-only; entries are never updated or deleted here.
type KnowledgeRepo interface {
	// All returns every stored entry in insertion order, including ones
	// that fail validation (the usecase layer filters those on load).
	All(ctx context.Context) ([]*domain.KnowledgeEntry, error)

	// Append writes one new immutable entry.
	Append(ctx context.Context, entry *domain.KnowledgeEntry) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Close() error
}
