package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/repo"
)

type sentMessage struct {
	Recipient string
	Text      string
	ThreadID  string
}

type mockNotifier struct {
	sent []sentMessage
	err  error
}

func (m *mockNotifier) Send(ctx context.Context, recipientID, text string, opts repo.SendOptions) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{Recipient: recipientID, Text: text, ThreadID: opts.ThreadID})
	return nil
}

func (m *mockNotifier) to(recipient string) []sentMessage {
	var out []sentMessage
	for _, s := range m.sent {
		if s.Recipient == recipient {
			out = append(out, s)
		}
	}
	return out
}

type mockSuggester struct {
	keywords    []string
	err         error
	gotQuestion string
	gotAnswer   string
	calls       int
}

func (m *mockSuggester) Suggest(ctx context.Context, question, answer string) ([]string, error) {
	m.calls++
	m.gotQuestion = question
	m.gotAnswer = answer
	return m.keywords, m.err
}

var testTexts = Texts{
	TooShort:       "too-short",
	Forwarded:      "forwarded",
	InProgress:     "in-progress",
	Rejected:       "rejected",
	UserError:      "user-error",
	AnswerPrefix:   "A: ",
	NewQuestion:    "new question from %s (%s): %s",
	KeywordsPrompt: "keywords?",
	KeywordsRetry:  "keywords-retry",
	Saved:          "saved: %s",
	AlreadyHandled: "already-handled",
	SaveFailed:     "save-failed",
}

const staffChat = "oc_staff"

type escalationFixture struct {
	esc       *EscalationUsecase
	knowledge *KnowledgeUsecase
	pending   *PendingUsecase
	notifier  *mockNotifier
	suggester *mockSuggester
	kbRepo    *mockKnowledgeRepo
	qRepo     *mockQuestionRepo
}

func newEscalationFixture(t *testing.T) *escalationFixture {
	t.Helper()

	kbRepo := &mockKnowledgeRepo{
		entries: []*domain.KnowledgeEntry{
			{ID: 1, Keywords: []string{"парковка", "машина", "стоянка"}, Answer: "парковка 500₽ в сутки"},
		},
		nextID: 1,
	}
	qRepo := newMockQuestionRepo()
	notifier := &mockNotifier{}
	suggester := &mockSuggester{keywords: []string{"баня", "сауна"}}

	matcher := NewMatcher(0, 0, zap.NewNop())
	knowledge := NewKnowledgeUsecase(kbRepo, matcher, zap.NewNop())
	if err := knowledge.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	pending := NewPendingUsecase(qRepo, zap.NewNop())

	esc := NewEscalationUsecase(matcher, knowledge, pending, notifier, suggester,
		testTexts, staffChat, "thread-1", zap.NewNop())

	return &escalationFixture{
		esc:       esc,
		knowledge: knowledge,
		pending:   pending,
		notifier:  notifier,
		suggester: suggester,
		kbRepo:    kbRepo,
		qRepo:     qRepo,
	}
}

func TestHandleUserMessage_TooShort(t *testing.T) {
	f := newEscalationFixture(t)

	f.esc.HandleUserMessage(context.Background(), "u1", "Иван", "привет")

	msgs := f.notifier.to("u1")
	if len(msgs) != 1 || msgs[0].Text != "too-short" {
		t.Fatalf("Expected the elaborate prompt, got %v", msgs)
	}
	if f.pending.Has("u1") {
		t.Error("Expected no escalation for a short message")
	}
}

func TestHandleUserMessage_Matched(t *testing.T) {
	f := newEscalationFixture(t)

	f.esc.HandleUserMessage(context.Background(), "u1", "Иван", "сколько стоит парковка машины")

	msgs := f.notifier.to("u1")
	if len(msgs) != 1 || msgs[0].Text != "парковка 500₽ в сутки" {
		t.Fatalf("Expected the knowledge base answer, got %v", msgs)
	}
	if len(f.notifier.to(staffChat)) != 0 {
		t.Error("Expected no staff notification for a matched question")
	}
}

func TestHandleUserMessage_MatchClearsPending(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "есть ли у вас прокат велосипедов")
	if !f.pending.Has("u1") {
		t.Fatal("Expected an escalated question")
	}

	// A follow-up that the knowledge base can answer releases the slot.
	f.esc.HandleUserMessage(ctx, "u1", "Иван", "сколько стоит парковка машины")
	if f.pending.Has("u1") {
		t.Error("Expected the pending slot to be cleared by the automated answer")
	}
}

func TestHandleUserMessage_Escalation(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "есть ли у вас прокат велосипедов")

	if !f.pending.Has("u1") {
		t.Fatal("Expected a pending question")
	}
	userMsgs := f.notifier.to("u1")
	if len(userMsgs) != 1 || userMsgs[0].Text != "forwarded" {
		t.Fatalf("Expected the forwarded notice, got %v", userMsgs)
	}
	staffMsgs := f.notifier.to(staffChat)
	if len(staffMsgs) != 1 {
		t.Fatalf("Expected exactly one staff notification, got %d", len(staffMsgs))
	}
	if staffMsgs[0].ThreadID != "thread-1" {
		t.Errorf("Expected the staff notification in the topic, got %q", staffMsgs[0].ThreadID)
	}
	if !strings.Contains(staffMsgs[0].Text, "Иван") || !strings.Contains(staffMsgs[0].Text, "велосипедов") {
		t.Errorf("Expected user info and question in the notification, got %q", staffMsgs[0].Text)
	}
}

func TestHandleUserMessage_DuplicateSuppressed(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "есть ли у вас прокат велосипедов")
	f.esc.HandleUserMessage(ctx, "u1", "Иван", "есть ли у вас прокат велосипедов")

	if got := len(f.notifier.to(staffChat)); got != 1 {
		t.Errorf("Expected one staff notification for repeated questions, got %d", got)
	}
	userMsgs := f.notifier.to("u1")
	if len(userMsgs) != 2 || userMsgs[1].Text != "in-progress" {
		t.Fatalf("Expected the in-progress notice on repeat, got %v", userMsgs)
	}
}

func TestHandleUserMessage_SaveFailure(t *testing.T) {
	f := newEscalationFixture(t)
	f.qRepo.saveErr = errors.New("disk full")

	f.esc.HandleUserMessage(context.Background(), "u1", "Иван", "есть ли у вас прокат велосипедов")

	userMsgs := f.notifier.to("u1")
	if len(userMsgs) != 1 || userMsgs[0].Text != "user-error" {
		t.Fatalf("Expected the user error notice, got %v", userMsgs)
	}
	staffMsgs := f.notifier.to(staffChat)
	if len(staffMsgs) != 1 || staffMsgs[0].Text != "save-failed" {
		t.Fatalf("Expected the save failure notice to staff, got %v", staffMsgs)
	}
	if f.pending.Has("u1") {
		t.Error("Expected no pending slot after a failed save")
	}
}

func TestAnswerCycle(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "работает ли баня зимой")

	q, err := f.esc.SelectQuestion("admin1", "u1")
	if err != nil {
		t.Fatalf("SelectQuestion failed: %v", err)
	}
	if q.Question != "работает ли баня зимой" {
		t.Errorf("Expected the pending question, got %q", q.Question)
	}

	if err := f.esc.HandleAdminFreeAnswer(ctx, "admin1", "Баня работает круглый год"); err != nil {
		t.Fatalf("HandleAdminFreeAnswer failed: %v", err)
	}

	userMsgs := f.notifier.to("u1")
	last := userMsgs[len(userMsgs)-1]
	if last.Text != "A: Баня работает круглый год" {
		t.Errorf("Expected the prefixed answer, got %q", last.Text)
	}
	if f.pending.Has("u1") {
		t.Error("Expected the slot to be released after the answer")
	}
	if state := f.esc.AdminState("admin1"); state.Phase != domain.AdminAwaitingKeywords {
		t.Fatalf("Expected AdminAwaitingKeywords, got %v", state.Phase)
	}

	if err := f.esc.HandleAdminKeywords(ctx, "admin1", "баня, сауна, парение"); err != nil {
		t.Fatalf("HandleAdminKeywords failed: %v", err)
	}

	if f.knowledge.Len() != 2 {
		t.Fatalf("Expected the answer committed to the knowledge base, have %d entries", f.knowledge.Len())
	}
	if state := f.esc.AdminState("admin1"); state.Phase != domain.AdminIdle {
		t.Errorf("Expected the admin session to be cleared, got %v", state.Phase)
	}

	staffMsgs := f.notifier.to(staffChat)
	last = staffMsgs[len(staffMsgs)-1]
	if !strings.Contains(last.Text, "saved:") || !strings.Contains(last.Text, "баня, сауна, парение") {
		t.Errorf("Expected the commit confirmation, got %q", last.Text)
	}

	// Audit trail on the question record.
	if got := f.qRepo.records["u1"].Keywords; len(got) != 3 {
		t.Errorf("Expected keywords recorded on the question record, got %v", got)
	}

	// The new entry answers the next guest directly.
	f.esc.HandleUserMessage(ctx, "u2", "Мария", "работает ли у вас баня")
	m2 := f.notifier.to("u2")
	if len(m2) != 1 || m2[0].Text != "Баня работает круглый год" {
		t.Errorf("Expected the committed answer for the next guest, got %v", m2)
	}
}

func TestHandleAdminFreeAnswer_ScrubsMarkdown(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "есть ли у вас прокат велосипедов")
	if _, err := f.esc.SelectQuestion("admin1", "u1"); err != nil {
		t.Fatalf("SelectQuestion failed: %v", err)
	}
	if err := f.esc.HandleAdminFreeAnswer(ctx, "admin1", "*Да!* [прокат](url) от 300₽"); err != nil {
		t.Fatalf("HandleAdminFreeAnswer failed: %v", err)
	}

	userMsgs := f.notifier.to("u1")
	last := userMsgs[len(userMsgs)-1]
	if last.Text != "A: Да прокатurl от 300₽" {
		t.Errorf("Expected markdown controls stripped, got %q", last.Text)
	}
}

func TestHandleAdminKeywords_Auto(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "работает ли баня зимой")
	f.esc.SelectQuestion("admin1", "u1")
	f.esc.HandleAdminFreeAnswer(ctx, "admin1", "Баня работает круглый год")

	if err := f.esc.HandleAdminKeywords(ctx, "admin1", "авто"); err != nil {
		t.Fatalf("HandleAdminKeywords failed: %v", err)
	}

	if f.suggester.calls != 1 {
		t.Fatalf("Expected one suggester call, got %d", f.suggester.calls)
	}
	if f.suggester.gotQuestion != "работает ли баня зимой" {
		t.Errorf("Expected the original question passed to the suggester, got %q", f.suggester.gotQuestion)
	}
	if f.suggester.gotAnswer != "Баня работает круглый год" {
		t.Errorf("Expected the answer passed to the suggester, got %q", f.suggester.gotAnswer)
	}

	entries := f.knowledge.All()
	lastEntry := entries[len(entries)-1]
	if len(lastEntry.Keywords) != 2 || lastEntry.Keywords[0] != "баня" {
		t.Errorf("Expected the suggested keywords committed, got %v", lastEntry.Keywords)
	}
}

func TestHandleAdminKeywords_SuggesterFailureFallsBack(t *testing.T) {
	f := newEscalationFixture(t)
	f.suggester.keywords = nil
	f.suggester.err = errors.New("api down")
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "работает ли баня зимой")
	f.esc.SelectQuestion("admin1", "u1")
	f.esc.HandleAdminFreeAnswer(ctx, "admin1", "Баня работает круглый год")

	if err := f.esc.HandleAdminKeywords(ctx, "admin1", "auto"); err != nil {
		t.Fatalf("HandleAdminKeywords failed: %v", err)
	}

	entries := f.knowledge.All()
	lastEntry := entries[len(entries)-1]
	if len(lastEntry.Keywords) != len(fallbackKeywords) {
		t.Errorf("Expected the fallback keywords, got %v", lastEntry.Keywords)
	}
}

func TestHandleAdminKeywords_EmptyReprompts(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "работает ли баня зимой")
	f.esc.SelectQuestion("admin1", "u1")
	f.esc.HandleAdminFreeAnswer(ctx, "admin1", "Баня работает круглый год")

	if err := f.esc.HandleAdminKeywords(ctx, "admin1", " ,  , "); err != nil {
		t.Fatalf("HandleAdminKeywords failed: %v", err)
	}

	staffMsgs := f.notifier.to(staffChat)
	last := staffMsgs[len(staffMsgs)-1]
	if last.Text != "keywords-retry" {
		t.Errorf("Expected a retry prompt, got %q", last.Text)
	}
	if state := f.esc.AdminState("admin1"); state.Phase != domain.AdminAwaitingKeywords {
		t.Errorf("Expected the session to stay in AdminAwaitingKeywords, got %v", state.Phase)
	}
	if f.knowledge.Len() != 1 {
		t.Errorf("Expected no commit on empty keywords, have %d entries", f.knowledge.Len())
	}
}

func TestAnswerRace_SecondAdminLoses(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "работает ли баня зимой")

	f.esc.SelectQuestion("admin1", "u1")
	f.esc.SelectQuestion("admin2", "u1")

	if err := f.esc.HandleAdminFreeAnswer(ctx, "admin1", "Да, работает"); err != nil {
		t.Fatalf("First admin's answer failed: %v", err)
	}

	err := f.esc.HandleAdminFreeAnswer(ctx, "admin2", "Нет, закрыта")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for the second admin, got %v", err)
	}
	if state := f.esc.AdminState("admin2"); state.Phase != domain.AdminIdle {
		t.Errorf("Expected the losing admin's session reset, got %v", state.Phase)
	}

	// The guest got exactly one answer.
	var answers int
	for _, m := range f.notifier.to("u1") {
		if strings.HasPrefix(m.Text, "A: ") {
			answers++
		}
	}
	if answers != 1 {
		t.Errorf("Expected exactly one delivered answer, got %d", answers)
	}
}

func TestHandleDirectAnswer_WithoutSlot(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	if err := f.esc.HandleDirectAnswer(ctx, "admin1", "u9", "Ответ без очереди"); err != nil {
		t.Fatalf("HandleDirectAnswer failed: %v", err)
	}

	msgs := f.notifier.to("u9")
	if len(msgs) != 1 || msgs[0].Text != "A: Ответ без очереди" {
		t.Fatalf("Expected the delivered answer, got %v", msgs)
	}
	if state := f.esc.AdminState("admin1"); state.Phase != domain.AdminAwaitingKeywords {
		t.Errorf("Expected the keyword step to open, got %v", state.Phase)
	}
}

func TestHandleReject(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "есть ли у вас прокат велосипедов")

	if err := f.esc.HandleReject(ctx, "u1"); err != nil {
		t.Fatalf("HandleReject failed: %v", err)
	}
	if f.pending.Has("u1") {
		t.Error("Expected the question removed")
	}
	userMsgs := f.notifier.to("u1")
	last := userMsgs[len(userMsgs)-1]
	if last.Text != "rejected" {
		t.Errorf("Expected the rejection notice, got %q", last.Text)
	}

	if err := f.esc.HandleReject(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double reject, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.esc.HandleUserMessage(ctx, "u1", "Иван", "работает ли баня зимой")
	f.esc.SelectQuestion("admin1", "u1")

	f.esc.Cancel("admin1")
	if state := f.esc.AdminState("admin1"); state.Phase != domain.AdminIdle {
		t.Errorf("Expected an idle session after cancel, got %v", state.Phase)
	}
	if !f.pending.Has("u1") {
		t.Error("Expected the pending question to survive a cancel")
	}
}
