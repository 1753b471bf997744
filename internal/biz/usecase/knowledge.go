package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/repo"
)

// KnowledgeUsecase owns the in-memory knowledge base and its lifecycle:
// load from durable storage, append-then-reload on staff commits, and the
// matcher index rebuild that follows every reload.
type KnowledgeUsecase struct {
	repo    repo.KnowledgeRepo
	matcher *Matcher
	logger  *zap.Logger

	// writeMu serializes append+reload as one atomic unit; the store has
	// a single writer.
	writeMu sync.Mutex

	// loading short-circuits re-entrant reloads.
	loading atomic.Bool

	snapMu  sync.RWMutex
	entries []*domain.KnowledgeEntry
}

// NewKnowledgeUsecase creates a knowledge usecase.
func NewKnowledgeUsecase(r repo.KnowledgeRepo, matcher *Matcher, logger *zap.Logger) *KnowledgeUsecase {
	return &KnowledgeUsecase{repo: r, matcher: matcher, logger: logger}
}

// Load reads the durable store into memory, discarding malformed entries,
// and rebuilds the matcher index. Safe to call repeatedly; a concurrent
// reload is skipped rather than queued.
func (uc *KnowledgeUsecase) Load(ctx context.Context) error {
	if !uc.loading.CompareAndSwap(false, true) {
		uc.logger.Debug("knowledge base already loading, skipping")
		return nil
	}
	defer uc.loading.Store(false)

	all, err := uc.repo.All(ctx)
	if err != nil {
		return &domain.StorageError{Op: "load knowledge base", Err: err}
	}

	valid := make([]*domain.KnowledgeEntry, 0, len(all))
	for _, e := range all {
		if !e.Valid() {
			uc.logger.Warn("skipping malformed knowledge entry", zap.Int64("id", e.ID))
			continue
		}
		valid = append(valid, e)
	}

	uc.snapMu.Lock()
	uc.entries = valid
	uc.snapMu.Unlock()

	uc.matcher.Rebuild(valid)
	uc.logger.Info("knowledge base loaded", zap.Int("entries", len(valid)))
	return nil
}

// Append validates and writes a new entry, then reloads the store so memory
// and the matcher index re-derive truth from durable storage.
func (uc *KnowledgeUsecase) Append(ctx context.Context, keywords []string, answer string) error {
	cleaned := CleanKeywords(keywords)
	if len(cleaned) == 0 {
		return &domain.ValidationError{Field: "keywords", Reason: "at least one non-empty keyword required"}
	}
	if strings.TrimSpace(answer) == "" {
		return &domain.ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	entry := &domain.KnowledgeEntry{Keywords: cleaned, Answer: answer}
	if err := uc.repo.Append(ctx, entry); err != nil {
		return &domain.StorageError{Op: "append knowledge entry", Err: err}
	}
	uc.logger.Info("knowledge entry appended", zap.Strings("keywords", cleaned))
	return uc.Load(ctx)
}

// All returns the current in-memory snapshot. Callers must not mutate it.
func (uc *KnowledgeUsecase) All() []*domain.KnowledgeEntry {
	uc.snapMu.RLock()
	defer uc.snapMu.RUnlock()
	out := make([]*domain.KnowledgeEntry, len(uc.entries))
	copy(out, uc.entries)
	return out
}

// Len returns the current entry count.
func (uc *KnowledgeUsecase) Len() int {
	uc.snapMu.RLock()
	defer uc.snapMu.RUnlock()
	return len(uc.entries)
}

// Seed writes the initial resort entries when the store is empty, so a
// fresh deployment can answer the basics before staff train it.
func (uc *KnowledgeUsecase) Seed(ctx context.Context) error {
	count, err := uc.repo.Count(ctx)
	if err != nil {
		return &domain.StorageError{Op: "count knowledge entries", Err: err}
	}
	if count > 0 {
		return nil
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()
	for _, e := range initialEntries() {
		if err := uc.repo.Append(ctx, e); err != nil {
			return &domain.StorageError{Op: "seed knowledge base", Err: err}
		}
	}
	uc.logger.Info("initial knowledge base created")
	return uc.Load(ctx)
}

// CleanKeywords trims and drops empty keywords, preserving order and the
// original casing (matching is case-insensitive, storage is as given).
func CleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func initialEntries() []*domain.KnowledgeEntry {
	return []*domain.KnowledgeEntry{
		{
			Keywords: []string{"цена", "стоимость", "сколько", "деньги"},
			Answer: "💰 Цены на размещение:\n\n🏠 КОМФОРТ\n• Дом №8 (4 чел.) — от 9999₽\n• Дом №9/10 (6 чел.) — от 10999₽\n• Дом №14 (до 10+ чел.) — от 21999₽\n\n" +
				"🛏️ ЭКОНОМ\n• Комната (4 чел.) — от 4999₽\n• Комната (5 чел.) — от 5499₽\n\n👶 Дети до 5 лет — бесплатно",
		},
		{
			Keywords: []string{"душ", "туалет", "удобства", "ванная"},
			Answer: "🚿 Удобства:\n• Душа нет, но есть русские бани на дровах\n• Удобства на улице\n• Большой дачный туалет на территории\n\n" +
				"💧 База в заповедной зоне, поэтому центральной канализации нет",
		},
		{
			Keywords: []string{"развлечения", "что делать", "досуг", "активности"},
			Answer: "🏖 Развлечения:\n• Купание в озере\n• Русская баня с парением ❄️\n• Прокат:\n  - Сапборд — 1200₽/час\n  - Байдарка\n  - Лодка\n" +
				"• Мангальные зоны включены в стоимость!",
		},
		{
			Keywords: []string{"парковка", "машина", "авто", "стоянка"},
			Answer:   "🚗 Парковка:\n• Легковой авто — 500₽/сутки\n• Газель — 1000₽/сутки\n\n📍 Возможен заезд на автомобиле",
		},
		{
			Keywords: []string{"трансфер", "как добраться", "доехать"},
			Answer: "🚖 Трансфер и проезд:\n📍 Координаты: 55.1881079369311, 60.05969764417703\n\n" +
				"• Индивидуальный трансфер - уточняйте стоимость\n• Групповой трансфер - уточняйте стоимость\n\nДля заказа трансфера напишите \"трансфер\"",
		},
	}
}
