package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/repo"
)

// PendingUsecase tracks at most one open question per user. Every mutation
// hits durable storage before the in-memory map, so a restart rehydrates
// the same state; the map exists only for fast dedupe checks and listing.
type PendingUsecase struct {
	repo   repo.QuestionRepo
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*domain.PendingQuestion
	order   []string // userIDs in insertion order, for stable staff listing
}

// NewPendingUsecase creates a pending-question registry.
func NewPendingUsecase(r repo.QuestionRepo, logger *zap.Logger) *PendingUsecase {
	return &PendingUsecase{
		repo:    r,
		logger:  logger,
		pending: make(map[string]*domain.PendingQuestion),
	}
}

// Rehydrate rebuilds the in-memory registry from durable records that lack
// a committed answer. Called once on process start.
func (uc *PendingUsecase) Rehydrate(ctx context.Context) error {
	list, err := uc.repo.ListPending(ctx)
	if err != nil {
		return &domain.StorageError{Op: "load pending questions", Err: err}
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.pending = make(map[string]*domain.PendingQuestion, len(list))
	uc.order = uc.order[:0]
	for _, q := range list {
		uc.pending[q.UserID] = q
		uc.order = append(uc.order, q.UserID)
	}
	uc.logger.Info("pending questions loaded", zap.Int("count", len(list)))
	return nil
}

// Has reports whether the user has an open question.
func (uc *PendingUsecase) Has(userID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.pending[userID]
	return ok
}

// Get returns the user's open question, if any.
func (uc *PendingUsecase) Get(userID string) (*domain.PendingQuestion, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	q, ok := uc.pending[userID]
	return q, ok
}

// Save stores a new pending question, overwriting any existing slot for the
// user. The durable write happens first; a storage failure leaves the
// registry unchanged and the operation retryable.
func (uc *PendingUsecase) Save(ctx context.Context, userID, userInfo, question string) (*domain.PendingQuestion, error) {
	q := &domain.PendingQuestion{
		UserID:    userID,
		UserInfo:  userInfo,
		Question:  question,
		CreatedAt: time.Now(),
	}
	if err := uc.repo.SavePending(ctx, q); err != nil {
		return nil, &domain.StorageError{Op: "save pending question", Err: err}
	}

	uc.mu.Lock()
	if _, exists := uc.pending[userID]; !exists {
		uc.order = append(uc.order, userID)
	}
	uc.pending[userID] = q
	uc.mu.Unlock()

	uc.logger.Info("pending question saved", zap.String("user", userInfo))
	return q, nil
}

// Resolve records the delivered answer on the durable record and frees the
// user's slot. Returns ErrNotFound when no slot exists (already handled by
// another admin).
func (uc *PendingUsecase) Resolve(ctx context.Context, userID, answer string) error {
	uc.mu.Lock()
	_, ok := uc.pending[userID]
	uc.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	if err := uc.repo.FillAnswer(ctx, userID, answer); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Durable record already answered; drop the stale slot.
			uc.drop(userID)
			return domain.ErrNotFound
		}
		return &domain.StorageError{Op: "record answer", Err: err}
	}
	uc.drop(userID)
	uc.logger.Info("pending question resolved", zap.String("userID", userID))
	return nil
}

// CommitKeywords records the keywords an answer was committed under, for
// the audit trail. The slot is already gone at this point, so a missing
// durable row is not an error.
func (uc *PendingUsecase) CommitKeywords(ctx context.Context, userID string, keywords []string) error {
	if err := uc.repo.FillKeywords(ctx, userID, keywords); err != nil {
		return &domain.StorageError{Op: "record keywords", Err: err}
	}
	return nil
}

// Remove deletes the user's question from durable storage and memory
// (reject flow). Returns ErrNotFound when no slot exists.
func (uc *PendingUsecase) Remove(ctx context.Context, userID string) error {
	uc.mu.Lock()
	_, ok := uc.pending[userID]
	uc.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	if err := uc.repo.Delete(ctx, userID); err != nil {
		return &domain.StorageError{Op: "delete pending question", Err: err}
	}
	uc.drop(userID)
	uc.logger.Info("pending question removed", zap.String("userID", userID))
	return nil
}

// Snapshot returns the open questions in insertion order.
func (uc *PendingUsecase) Snapshot() []*domain.PendingQuestion {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	out := make([]*domain.PendingQuestion, 0, len(uc.pending))
	for _, id := range uc.order {
		if q, ok := uc.pending[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Count returns the number of open questions.
func (uc *PendingUsecase) Count() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.pending)
}

func (uc *PendingUsecase) drop(userID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.pending, userID)
	for i, id := range uc.order {
		if id == userID {
			uc.order = append(uc.order[:i], uc.order[i+1:]...)
			break
		}
	}
}
