package domain

import "time"

// PendingQuestion is a guest question awaiting staff action.
// The registry holds at most one per user.
type PendingQuestion struct {
	UserID    string
	UserInfo  string // display name or id, for staff readability
	Question  string
	CreatedAt time.Time
}

// QuestionRecord is the durable form of a question. An empty Answer means
// the question is still pending; a filled Answer with keywords is the audit
// trail of a committed staff reply.
type QuestionRecord struct {
	UserID     string
	UserInfo   string
	Question   string
	Answer     string
	Keywords   []string
	CreatedAt  time.Time
	AnsweredAt time.Time
}

// Pending reports whether the record still awaits a staff answer.
func (r *QuestionRecord) Pending() bool {
	return r != nil && r.Answer == ""
}
