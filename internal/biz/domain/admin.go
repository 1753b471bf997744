package domain

// AdminPhase is the phase of a staff member's reply flow.
type AdminPhase int

const (
	// AdminIdle means the admin has no reply in progress.
	AdminIdle AdminPhase = iota
	// AdminAwaitingAnswer means the admin picked a pending question and
	// their next message is the free-text answer for the target user.
	AdminAwaitingAnswer
	// AdminAwaitingKeywords means the answer was delivered and the admin's
	// next message is the comma-separated keyword list for the commit.
	AdminAwaitingKeywords
)

// AdminReplyState is the per-admin reply session. It is owned exclusively
// by the admin it is keyed under; two admins never share one.
type AdminReplyState struct {
	Phase        AdminPhase
	TargetUserID string
	Question     string // original guest question, kept for keyword suggestion
	Answer       string // captured free-text answer, set in AdminAwaitingKeywords
}

// Idle reports whether no reply flow is in progress.
func (s *AdminReplyState) Idle() bool {
	return s == nil || s.Phase == AdminIdle
}
