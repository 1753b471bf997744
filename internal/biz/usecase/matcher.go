package usecase

import (
	"math"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/beregbot/bereg/internal/biz/domain"
)

// Default acceptance thresholds. Both are tunable through the replies
// config; see NewMatcher.
const (
	// DefaultSemanticThreshold is the minimum TF-IDF score for the
	// semantic stage to accept a document (strictly greater-than).
	DefaultSemanticThreshold = 43.0
	// DefaultKeywordThreshold is the minimum relevance percentage for the
	// keyword stage to accept its best match (inclusive).
	DefaultKeywordThreshold = 25.0
)

// Matcher answers free-text queries from the in-memory knowledge base using
// a three-stage pipeline: a short-query guard, TF-IDF semantic search, and
// keyword/root overlap scoring. It holds no durable state; Rebuild replaces
// the whole index whenever the knowledge base reloads.
type Matcher struct {
	semanticThreshold float64
	keywordThreshold  float64
	logger            *zap.Logger

	mu      sync.RWMutex
	entries []*domain.KnowledgeEntry
	index   *tfidfIndex
}

// NewMatcher creates a matcher with the given stage thresholds. Zero or
// negative thresholds fall back to the defaults.
func NewMatcher(semanticThreshold, keywordThreshold float64, logger *zap.Logger) *Matcher {
	if semanticThreshold <= 0 {
		semanticThreshold = DefaultSemanticThreshold
	}
	if keywordThreshold <= 0 {
		keywordThreshold = DefaultKeywordThreshold
	}
	return &Matcher{
		semanticThreshold: semanticThreshold,
		keywordThreshold:  keywordThreshold,
		logger:            logger,
	}
}

// Rebuild replaces the matcher's entries and semantic index. The new index
// is built fully before being published, so concurrent Query calls never
// see a half-built index.
func (m *Matcher) Rebuild(entries []*domain.KnowledgeEntry) {
	valid := make([]*domain.KnowledgeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Valid() {
			valid = append(valid, e)
		}
	}
	index := buildTFIDFIndex(valid)

	m.mu.Lock()
	m.entries = valid
	m.index = index
	m.mu.Unlock()

	m.logger.Info("semantic index rebuilt", zap.Int("documents", len(valid)))
}

// Query runs the three-stage pipeline over text. First success wins.
func (m *Matcher) Query(text string) domain.MatchResult {
	clean := normalizeText(text)
	allWords := strings.Fields(clean)

	// Stage 0: too few words for an automated answer. Distinct from "no
	// match" so the caller asks the user to elaborate instead of
	// escalating.
	if len(allWords) <= 2 {
		m.logger.Debug("query too short for automated answer", zap.String("query", text))
		return domain.MatchResult{Kind: domain.MatchTooShort}
	}

	m.mu.RLock()
	entries := m.entries
	index := m.index
	m.mu.RUnlock()

	// Stage 1: TF-IDF semantic search.
	if index != nil {
		if answer, score, ok := index.search(allWords); ok && score > m.semanticThreshold {
			m.logger.Debug("semantic match accepted", zap.Float64("score", score))
			return domain.MatchResult{Kind: domain.MatchFound, Answer: answer}
		}
	}

	// Stage 2: keyword/root overlap with relevance scoring.
	if answer, relevance, ok := keywordSearch(clean, entries); ok {
		if relevance >= m.keywordThreshold {
			m.logger.Debug("keyword match accepted",
				zap.Float64("relevance", relevance),
				zap.Float64("threshold", m.keywordThreshold))
			return domain.MatchResult{Kind: domain.MatchFound, Answer: answer, Relevance: relevance}
		}
		m.logger.Debug("keyword match below threshold",
			zap.Float64("relevance", relevance),
			zap.Float64("threshold", m.keywordThreshold))
	}

	// Stage 3: nothing matched; escalate to staff.
	return domain.MatchResult{Kind: domain.MatchNone}
}

// normalizeText lower-cases text, folds unicode forms, and replaces
// everything that is not a letter or digit with a space.
func normalizeText(text string) string {
	text = norm.NFKD.String(text)
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// significantWords returns the words of a cleaned message that are long
// enough to carry meaning (more than 3 runes).
func significantWords(clean string) []string {
	var words []string
	for _, w := range strings.Fields(clean) {
		if utf8.RuneCountInString(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

// wordRoot strips the last 2 runes as crude stemming. Words of 4 runes or
// fewer are returned unchanged.
func wordRoot(word string) string {
	runes := []rune(word)
	if len(runes) <= 4 {
		return word
	}
	return string(runes[:len(runes)-2])
}

// Relative match weights. Exact keyword hits dominate word-part hits,
// which dominate root hits; the root weight is low enough that an exact
// match always wins a tie-break on cumulative score.
const (
	exactMatchWeight = 3.0
	wordMatchWeight  = 2.0
	rootMatchWeight  = 0.7
)

// keywordSearch scores every entry's keywords against the cleaned query
// and returns the best entry's answer with its relevance percentage.
// The entry with the most matched keywords wins; ties break on cumulative
// weighted score.
func keywordSearch(clean string, entries []*domain.KnowledgeEntry) (answer string, relevance float64, ok bool) {
	messageWords := significantWords(clean)
	if len(messageWords) < 2 {
		return "", 0, false
	}

	var (
		best        *domain.KnowledgeEntry
		bestMatches int
		bestScore   float64
	)

	for _, entry := range entries {
		matches, score := scoreEntry(clean, messageWords, entry)
		if matches < 1 {
			continue
		}
		if matches > bestMatches || (matches == bestMatches && score > bestScore) {
			best = entry
			bestMatches = matches
			bestScore = score
		}
	}

	if best == nil {
		return "", 0, false
	}

	// Relevance percentage with bounded contributions: the match-ratio
	// base caps at 33, the accuracy bonus at 20, the total at 100.
	base := float64(bestMatches) / float64(len(messageWords)) * 33
	bonus := math.Min(20, bestScore/float64(bestMatches))
	return best.Answer, math.Min(100, base+bonus), true
}

// scoreEntry counts how many of an entry's keywords match the query and
// accumulates their weighted relevance.
func scoreEntry(clean string, messageWords []string, entry *domain.KnowledgeEntry) (matches int, score float64) {
	for _, keyword := range entry.Keywords {
		cleanKeyword := strings.ToLower(strings.TrimSpace(keyword))
		if cleanKeyword == "" {
			continue
		}

		// Exact substring of the whole keyword inside the query.
		if strings.Contains(clean, cleanKeyword) {
			matches++
			score += float64(utf8.RuneCountInString(cleanKeyword)) * exactMatchWeight
			continue
		}

		if w, ok := matchKeywordWords(cleanKeyword, messageWords); ok {
			matches++
			score += w
		}
	}
	return matches, score
}

// matchKeywordWords compares the individual words of a keyword against the
// query words, first by substring containment in either direction, then by
// root equality/containment.
func matchKeywordWords(cleanKeyword string, messageWords []string) (weight float64, ok bool) {
	for _, kw := range strings.Fields(cleanKeyword) {
		kwLen := utf8.RuneCountInString(kw)
		if kwLen < 4 {
			continue
		}
		for _, mw := range messageWords {
			mwLen := utf8.RuneCountInString(mw)

			if mwLen >= 4 && (strings.Contains(mw, kw) || strings.Contains(kw, mw)) {
				return float64(min(kwLen, mwLen)) * wordMatchWeight, true
			}

			// Root comparison needs both words strictly longer than 4
			// runes, and roots of at least 4 runes to avoid false
			// positives on short stems.
			if kwLen > 4 && mwLen > 4 {
				kr := wordRoot(kw)
				mr := wordRoot(mw)
				krLen := utf8.RuneCountInString(kr)
				mrLen := utf8.RuneCountInString(mr)
				if krLen >= 4 && mrLen >= 4 &&
					(kr == mr || strings.Contains(mw, kr) || strings.Contains(kw, mr)) {
					return float64(min(krLen, mrLen)) * rootMatchWeight, true
				}
			}
		}
	}
	return 0, false
}

// tfidfIndex is a term-weighting index with one document per knowledge
// entry (keywords concatenated with the answer text). It mirrors a classic
// tf-idf: raw term frequency times 1+log(N/(1+df)).
type tfidfIndex struct {
	docs []tfidfDoc
	df   map[string]int
}

type tfidfDoc struct {
	answer string
	tf     map[string]int
}

func buildTFIDFIndex(entries []*domain.KnowledgeEntry) *tfidfIndex {
	index := &tfidfIndex{df: make(map[string]int)}
	for _, e := range entries {
		text := normalizeText(strings.Join(e.Keywords, " ") + " " + e.Answer)
		tf := make(map[string]int)
		for _, term := range strings.Fields(text) {
			tf[term]++
		}
		for term := range tf {
			index.df[term]++
		}
		index.docs = append(index.docs, tfidfDoc{answer: e.Answer, tf: tf})
	}
	return index
}

// search scores the query terms against every document and returns the
// highest-scoring one.
func (x *tfidfIndex) search(queryTerms []string) (answer string, score float64, ok bool) {
	if len(x.docs) == 0 {
		return "", 0, false
	}
	n := float64(len(x.docs))
	bestScore := 0.0
	bestDoc := -1
	for i, doc := range x.docs {
		s := 0.0
		for _, term := range queryTerms {
			tf := doc.tf[term]
			if tf == 0 {
				continue
			}
			idf := 1 + math.Log(n/float64(1+x.df[term]))
			s += float64(tf) * idf
		}
		if s > bestScore {
			bestScore = s
			bestDoc = i
		}
	}
	if bestDoc < 0 {
		return "", 0, false
	}
	return x.docs[bestDoc].answer, bestScore, true
}
