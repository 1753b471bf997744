package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/repo"
	"github.com/beregbot/bereg/internal/biz/usecase"
)

const (
	pendingListCap   = 8   // questions shown by /pending
	questionPreview  = 30  // runes of each question shown in lists
	knowledgeListCap = 20  // entries shown by /kb
	answerPreview    = 100 // runes of each answer shown by /kb
)

// QAService routes inbound chat messages: guest messages go through the
// escalation flow, staff messages are interpreted as commands or reply-flow
// steps.
type QAService struct {
	escalation *usecase.EscalationUsecase
	knowledge  *usecase.KnowledgeUsecase
	pending    *usecase.PendingUsecase
	staff      repo.PrivilegeCheck
	notifier   repo.Notifier
	texts      usecase.Texts
	logger     *zap.Logger
}

// MessageRequest represents an inbound chat message
type MessageRequest struct {
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
}

// NewQAService creates the message router.
func NewQAService(
	escalation *usecase.EscalationUsecase,
	knowledge *usecase.KnowledgeUsecase,
	pending *usecase.PendingUsecase,
	staff repo.PrivilegeCheck,
	notifier repo.Notifier,
	texts usecase.Texts,
	logger *zap.Logger,
) *QAService {
	return &QAService{
		escalation: escalation,
		knowledge:  knowledge,
		pending:    pending,
		staff:      staff,
		notifier:   notifier,
		texts:      texts,
		logger:     logger,
	}
}

// HandleMessage processes one inbound message.
func (s *QAService) HandleMessage(ctx context.Context, req *MessageRequest) {
	text := strings.TrimSpace(req.Content)
	if text == "" {
		return
	}

	if s.staff.IsStaff(req.SenderID) {
		s.handleAdmin(ctx, req, text)
		return
	}

	userInfo := req.SenderName
	if userInfo == "" {
		userInfo = req.SenderID
	}
	s.escalation.HandleUserMessage(ctx, req.SenderID, userInfo, text)
}

// handleAdmin interprets a staff message: a slash command, or the next step
// of the admin's reply flow.
func (s *QAService) handleAdmin(ctx context.Context, req *MessageRequest, text string) {
	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, req, text)
		return
	}

	switch s.escalation.AdminState(req.SenderID).Phase {
	case domain.AdminAwaitingAnswer:
		if err := s.escalation.HandleAdminFreeAnswer(ctx, req.SenderID, text); err != nil {
			s.replyAdminError(ctx, req.ChatID, err)
		}

	case domain.AdminAwaitingKeywords:
		if err := s.escalation.HandleAdminKeywords(ctx, req.SenderID, text); err != nil {
			s.logger.Error("keyword commit failed", zap.Error(err))
		}

	default:
		s.reply(ctx, req.ChatID, "Выберите команду: /pending, /question, /answer, /reject, /kb, /stats, /reload, /cancel")
	}
}

func (s *QAService) handleCommand(ctx context.Context, req *MessageRequest, text string) {
	cmd, args := splitCommand(text)

	switch cmd {
	case "/answer":
		userID, answer, ok := splitArg(args)
		if !ok {
			s.reply(ctx, req.ChatID, "Использование: /answer <id пользователя> <ответ>")
			return
		}
		if err := s.escalation.HandleDirectAnswer(ctx, req.SenderID, userID, answer); err != nil {
			s.replyAdminError(ctx, req.ChatID, err)
		}

	case "/question":
		if args == "" {
			s.reply(ctx, req.ChatID, "Использование: /question <id пользователя>")
			return
		}
		q, err := s.escalation.SelectQuestion(req.SenderID, args)
		if err != nil {
			s.replyAdminError(ctx, req.ChatID, err)
			return
		}
		s.reply(ctx, req.ChatID, fmt.Sprintf("❓ Вопрос от %s (%s):\n\n%s\n\nНапишите ответ следующим сообщением.",
			q.UserInfo, q.CreatedAt.Format("02.01.2006 15:04"), q.Question))

	case "/reject":
		if args == "" {
			s.reply(ctx, req.ChatID, "Использование: /reject <id пользователя>")
			return
		}
		if err := s.escalation.HandleReject(ctx, args); err != nil {
			s.replyAdminError(ctx, req.ChatID, err)
			return
		}
		s.reply(ctx, req.ChatID, "✅ Вопрос отклонен и удален из очереди")

	case "/pending":
		s.reply(ctx, req.ChatID, s.formatPending())

	case "/kb":
		s.reply(ctx, req.ChatID, s.formatKnowledge())

	case "/stats":
		s.reply(ctx, req.ChatID, fmt.Sprintf("📊 Статистика:\n\n📚 Записей в базе знаний: %d\n❓ Вопросов в очереди: %d",
			s.knowledge.Len(), s.pending.Count()))

	case "/reload":
		if err := s.knowledge.Load(ctx); err != nil {
			s.logger.Error("knowledge reload failed", zap.Error(err))
			s.reply(ctx, req.ChatID, "❌ Не удалось перезагрузить базу знаний")
			return
		}
		s.reply(ctx, req.ChatID, fmt.Sprintf("✅ База знаний перезагружена: %d записей", s.knowledge.Len()))

	case "/cancel":
		s.escalation.Cancel(req.SenderID)
		s.reply(ctx, req.ChatID, "Текущее действие отменено.")

	default:
		s.reply(ctx, req.ChatID, "Неизвестная команда. Доступны: /pending, /question, /answer, /reject, /kb, /stats, /reload, /cancel")
	}
}

// formatPending renders the escalation queue in arrival order.
func (s *QAService) formatPending() string {
	questions := s.pending.Snapshot()
	if len(questions) == 0 {
		return "✅ Очередь вопросов пуста."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Вопросов в очереди: %d\n", len(questions))
	for i, q := range questions {
		if i == pendingListCap {
			fmt.Fprintf(&b, "\n…и ещё %d", len(questions)-pendingListCap)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s (%s): %s", i+1, q.UserInfo, q.UserID, preview(q.Question))
	}
	b.WriteString("\n\nОтвет: /question <id> или /answer <id> <текст>")
	return b.String()
}

// formatKnowledge renders the knowledge base keyword sets.
func (s *QAService) formatKnowledge() string {
	entries := s.knowledge.All()
	if len(entries) == 0 {
		return "База знаний пуста."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📚 Записей в базе знаний: %d\n", len(entries))
	for i, e := range entries {
		if i == knowledgeListCap {
			fmt.Fprintf(&b, "\n…и ещё %d", len(entries)-knowledgeListCap)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s\n   %s", e.ID, strings.Join(e.Keywords, ", "), truncate(e.Answer, answerPreview))
	}
	return b.String()
}

func (s *QAService) replyAdminError(ctx context.Context, chatID string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.reply(ctx, chatID, s.texts.AlreadyHandled)
	case errors.As(err, &ve):
		s.reply(ctx, chatID, validationReply(ve))
	default:
		s.logger.Error("admin action failed", zap.Error(err))
		s.reply(ctx, chatID, "❌ Произошла ошибка. Попробуйте ещё раз.")
	}
}

// validationReply maps validation failures to staff-facing copy; the
// internal reason is never echoed to chat.
func validationReply(ve *domain.ValidationError) string {
	switch ve.Field {
	case "answer":
		return "❌ Ответ не может быть пустым."
	case "keywords":
		return "❌ Ключевые слова некорректны, укажите их снова через запятую."
	case "state":
		return "❌ Сначала выберите вопрос: /question <id пользователя>."
	default:
		return "❌ Некорректный ввод. Попробуйте ещё раз."
	}
}

func (s *QAService) reply(ctx context.Context, chatID, text string) {
	if err := s.notifier.Send(ctx, chatID, text, repo.SendOptions{}); err != nil {
		s.logger.Warn("reply delivery failed", zap.String("chatID", chatID), zap.Error(err))
	}
}

// splitCommand separates the command word from its argument tail.
func splitCommand(text string) (string, string) {
	parts := strings.SplitN(text, " ", 2)
	cmd := strings.ToLower(parts[0])
	if len(parts) == 1 {
		return cmd, ""
	}
	return cmd, strings.TrimSpace(parts[1])
}

// splitArg separates the first argument from the rest.
func splitArg(args string) (string, string, bool) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 {
		return "", "", false
	}
	rest := strings.TrimSpace(parts[1])
	if parts[0] == "" || rest == "" {
		return "", "", false
	}
	return parts[0], rest, true
}

// preview folds whitespace and truncates a question to a fixed rune budget
// for list views.
func preview(text string) string {
	return truncate(strings.Join(strings.Fields(text), " "), questionPreview)
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
