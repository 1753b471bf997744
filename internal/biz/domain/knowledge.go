package domain

import (
	"strings"
	"time"
)

// KnowledgeEntry is a keyword-set/answer pair usable for automated replies.
// Entries are immutable once created; curation happens outside the bot.
type KnowledgeEntry struct {
	ID        int64
	Keywords  []string
	Answer    string
	CreatedAt time.Time
}

// Valid reports whether the entry can serve automated answers.
// Entries failing this are skipped on load rather than failing the reload.
func (e *KnowledgeEntry) Valid() bool {
	if e == nil || strings.TrimSpace(e.Answer) == "" {
		return false
	}
	for _, k := range e.Keywords {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}
