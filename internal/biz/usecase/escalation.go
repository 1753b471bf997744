package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/repo"
)

// Texts holds the guest- and staff-facing reply copy. The conf package
// fills it from the replies YAML; defaults live there too.
type Texts struct {
	TooShort       string // ask the user to elaborate
	Forwarded      string // question passed to staff
	InProgress     string // previous question still being handled
	Rejected       string // staff rejected the question
	UserError      string // polite generic failure for guests
	AnswerPrefix   string // prefix for delivered staff answers
	NewQuestion    string // staff notification, args: user info, user id, question
	KeywordsPrompt string // ask staff for keywords after delivery
	KeywordsRetry  string // staff supplied zero valid keywords
	Saved          string // commit confirmation, arg: joined keywords
	AlreadyHandled string // pending question gone
	SaveFailed     string // durable write failure, retryable
}

// AutoKeywordTokens are the literal staff replies that trigger automatic
// keyword generation instead of a manual list.
var AutoKeywordTokens = []string{"авто", "auto"}

// fallbackKeywords is used when the suggester is unavailable entirely.
var fallbackKeywords = []string{"база отдыха", "услуги", "информация"}

// EscalationUsecase orchestrates the question lifecycle: try the matcher,
// otherwise register a pending question and notify staff; then drive the
// staff reply cycle that folds new answers back into the knowledge base.
// All outbound messaging happens here; callers fire and forget.
type EscalationUsecase struct {
	matcher   *Matcher
	knowledge *KnowledgeUsecase
	pending   *PendingUsecase
	notifier  repo.Notifier
	suggester repo.KeywordSuggester
	texts     Texts

	staffChatID   string
	staffThreadID string
	logger        *zap.Logger

	adminMu sync.Mutex
	admins  map[string]*domain.AdminReplyState
}

// NewEscalationUsecase creates the coordinator.
func NewEscalationUsecase(
	matcher *Matcher,
	knowledge *KnowledgeUsecase,
	pending *PendingUsecase,
	notifier repo.Notifier,
	suggester repo.KeywordSuggester,
	texts Texts,
	staffChatID, staffThreadID string,
	logger *zap.Logger,
) *EscalationUsecase {
	return &EscalationUsecase{
		matcher:       matcher,
		knowledge:     knowledge,
		pending:       pending,
		notifier:      notifier,
		suggester:     suggester,
		texts:         texts,
		staffChatID:   staffChatID,
		staffThreadID: staffThreadID,
		logger:        logger,
		admins:        make(map[string]*domain.AdminReplyState),
	}
}

// HandleUserMessage processes a guest question end to end: answer it from
// the knowledge base, or escalate it to staff exactly once per user.
func (uc *EscalationUsecase) HandleUserMessage(ctx context.Context, userID, userInfo, text string) {
	res := uc.matcher.Query(text)

	switch res.Kind {
	case domain.MatchTooShort:
		uc.sendUser(ctx, userID, uc.texts.TooShort)

	case domain.MatchFound:
		// A later automated hit implicitly resolves an earlier escalation.
		if uc.pending.Has(userID) {
			if err := uc.pending.Remove(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				uc.logger.Error("failed to clear pending question after match", zap.Error(err))
			}
		}
		uc.sendUser(ctx, userID, res.Answer)

	case domain.MatchNone:
		if uc.pending.Has(userID) {
			// At most one outstanding staff notification per user.
			uc.sendUser(ctx, userID, uc.texts.InProgress)
			uc.logger.Info("duplicate question suppressed", zap.String("userID", userID))
			return
		}
		if _, err := uc.pending.Save(ctx, userID, userInfo, text); err != nil {
			uc.logger.Error("failed to save pending question", zap.Error(err))
			uc.sendUser(ctx, userID, uc.texts.UserError)
			uc.notifyStaff(ctx, uc.texts.SaveFailed)
			return
		}
		uc.notifyStaff(ctx, fmt.Sprintf(uc.texts.NewQuestion, userInfo, userID, text))
		uc.sendUser(ctx, userID, uc.texts.Forwarded)
		uc.logger.Info("question escalated to staff", zap.String("userID", userID))
	}
}

// SelectQuestion starts the button-driven reply flow: the admin picked a
// pending question and their next message will be the answer. Returns the
// question so the caller can show it, or ErrNotFound when another admin
// already handled it.
func (uc *EscalationUsecase) SelectQuestion(adminID, targetUserID string) (*domain.PendingQuestion, error) {
	q, ok := uc.pending.Get(targetUserID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	uc.setAdminState(adminID, &domain.AdminReplyState{
		Phase:        domain.AdminAwaitingAnswer,
		TargetUserID: targetUserID,
		Question:     q.Question,
	})
	return q, nil
}

// HandleAdminFreeAnswer captures the admin's free-text answer for their
// selected question: the pending slot is released, the answer is delivered
// to the guest, and the session moves to the keyword step.
//
// A StorageError leaves the slot and session untouched (retry by resending
// the answer); ErrNotFound means another admin won the race.
func (uc *EscalationUsecase) HandleAdminFreeAnswer(ctx context.Context, adminID, text string) error {
	state := uc.AdminState(adminID)
	if state.Phase != domain.AdminAwaitingAnswer {
		return &domain.ValidationError{Field: "state", Reason: "no question selected"}
	}

	answer := scrubMarkdown(text)
	if strings.TrimSpace(answer) == "" {
		return &domain.ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	if err := uc.pending.Resolve(ctx, state.TargetUserID, answer); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.setAdminState(adminID, nil)
		}
		return err
	}

	// Delivery failures do not unwind the resolution; the answer is still
	// worth committing to the knowledge base.
	uc.sendUser(ctx, state.TargetUserID, uc.texts.AnswerPrefix+answer)

	uc.setAdminState(adminID, &domain.AdminReplyState{
		Phase:        domain.AdminAwaitingKeywords,
		TargetUserID: state.TargetUserID,
		Question:     state.Question,
		Answer:       answer,
	})
	uc.notifyStaff(ctx, uc.texts.KeywordsPrompt)
	return nil
}

// HandleDirectAnswer is the one-shot staff command carrying target user and
// answer together. It works with or without an open slot for the user and
// then opens the keyword step for the admin.
func (uc *EscalationUsecase) HandleDirectAnswer(ctx context.Context, adminID, targetUserID, text string) error {
	answer := scrubMarkdown(text)
	if strings.TrimSpace(answer) == "" {
		return &domain.ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	question := ""
	if q, ok := uc.pending.Get(targetUserID); ok {
		question = q.Question
	}

	if err := uc.pending.Resolve(ctx, targetUserID, answer); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	uc.sendUser(ctx, targetUserID, uc.texts.AnswerPrefix+answer)

	uc.setAdminState(adminID, &domain.AdminReplyState{
		Phase:        domain.AdminAwaitingKeywords,
		TargetUserID: targetUserID,
		Question:     question,
		Answer:       answer,
	})
	uc.notifyStaff(ctx, uc.texts.KeywordsPrompt)
	return nil
}

// HandleAdminKeywords completes the commit: the admin supplies a
// comma-separated keyword list (or an auto token) and the answer enters the
// knowledge base. Zero valid keywords re-prompts without committing; a
// StorageError keeps the session so the commit stays retryable.
func (uc *EscalationUsecase) HandleAdminKeywords(ctx context.Context, adminID, text string) error {
	state := uc.AdminState(adminID)
	if state.Phase != domain.AdminAwaitingKeywords {
		return &domain.ValidationError{Field: "state", Reason: "no answer awaiting keywords"}
	}

	keywords := uc.parseKeywords(ctx, state, text)
	if len(keywords) == 0 {
		uc.notifyStaff(ctx, uc.texts.KeywordsRetry)
		return nil
	}

	if err := uc.knowledge.Append(ctx, keywords, state.Answer); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			uc.notifyStaff(ctx, uc.texts.KeywordsRetry)
			return nil
		}
		uc.notifyStaff(ctx, uc.texts.SaveFailed)
		return err
	}

	// Audit only; the knowledge base is already committed.
	if err := uc.pending.CommitKeywords(ctx, state.TargetUserID, keywords); err != nil {
		uc.logger.Warn("failed to record keywords on question record", zap.Error(err))
	}

	uc.setAdminState(adminID, nil)
	uc.notifyStaff(ctx, fmt.Sprintf(uc.texts.Saved, strings.Join(keywords, ", ")))
	return nil
}

// HandleReject removes a pending question and tells the guest to rephrase.
func (uc *EscalationUsecase) HandleReject(ctx context.Context, targetUserID string) error {
	if err := uc.pending.Remove(ctx, targetUserID); err != nil {
		return err
	}
	uc.sendUser(ctx, targetUserID, uc.texts.Rejected)
	uc.logger.Info("question rejected", zap.String("userID", targetUserID))
	return nil
}

// Cancel abandons the admin's reply flow.
func (uc *EscalationUsecase) Cancel(adminID string) {
	uc.setAdminState(adminID, nil)
}

// AdminState returns the admin's current reply state (idle when none).
func (uc *EscalationUsecase) AdminState(adminID string) domain.AdminReplyState {
	uc.adminMu.Lock()
	defer uc.adminMu.Unlock()
	if s, ok := uc.admins[adminID]; ok {
		return *s
	}
	return domain.AdminReplyState{Phase: domain.AdminIdle}
}

func (uc *EscalationUsecase) setAdminState(adminID string, s *domain.AdminReplyState) {
	uc.adminMu.Lock()
	defer uc.adminMu.Unlock()
	if s == nil || s.Idle() {
		delete(uc.admins, adminID)
		return
	}
	uc.admins[adminID] = s
}

// parseKeywords splits the staff reply into keywords, invoking the
// suggester for auto tokens.
func (uc *EscalationUsecase) parseKeywords(ctx context.Context, state domain.AdminReplyState, text string) []string {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	for _, token := range AutoKeywordTokens {
		if trimmed != token {
			continue
		}
		if uc.suggester == nil {
			return fallbackKeywords
		}
		keywords, err := uc.suggester.Suggest(ctx, state.Question, state.Answer)
		if err != nil || len(keywords) == 0 {
			uc.logger.Warn("keyword suggestion failed, using fallback", zap.Error(err))
			return fallbackKeywords
		}
		return keywords
	}
	return CleanKeywords(strings.Split(text, ","))
}

func (uc *EscalationUsecase) sendUser(ctx context.Context, userID, text string) {
	if err := uc.notifier.Send(ctx, userID, text, repo.SendOptions{}); err != nil {
		delivery := &domain.DeliveryError{Recipient: userID, Err: err}
		uc.logger.Warn("user delivery failed", zap.Error(delivery))
	}
}

func (uc *EscalationUsecase) notifyStaff(ctx context.Context, text string) {
	opts := repo.SendOptions{ThreadID: uc.staffThreadID}
	if err := uc.notifier.Send(ctx, uc.staffChatID, text, opts); err != nil {
		delivery := &domain.DeliveryError{Recipient: uc.staffChatID, Err: err}
		uc.logger.Warn("staff delivery failed", zap.Error(delivery))
	}
}

// markdownControls are the characters stripped from staff answers before
// delivery, so half-formed markup does not break client rendering.
const markdownControls = "_*[]()~`>#+-=|{}.!\\"

func scrubMarkdown(text string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(markdownControls, r) {
			return -1
		}
		return r
	}, text)
}
