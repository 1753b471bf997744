package domain

// MatchKind classifies the outcome of a knowledge-base lookup.
type MatchKind int

const (
	// MatchNone means no entry answered the query; escalate to staff.
	MatchNone MatchKind = iota
	// MatchFound means an entry answered the query.
	MatchFound
	// MatchTooShort means the query has too few significant words for an
	// automated answer; the user should be asked to elaborate instead of
	// the question being escalated.
	MatchTooShort
)

// MatchResult is the outcome of running a query through the matcher.
type MatchResult struct {
	Kind      MatchKind
	Answer    string
	Relevance float64 // keyword-stage relevance percentage, 0 for other stages
}
