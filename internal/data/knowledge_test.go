package data

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/beregbot/bereg/internal/biz/domain"
)

func TestKnowledgeRepo_AppendAndAll(t *testing.T) {
	repo, err := NewKnowledgeRepo(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	entries := []*domain.KnowledgeEntry{
		{Keywords: []string{"цена", "стоимость"}, Answer: "от 5000₽"},
		{Keywords: []string{"баня"}, Answer: "работает круглый год"},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(all))
	}
	if all[0].ID >= all[1].ID {
		t.Error("Expected insertion order by id")
	}
	if len(all[0].Keywords) != 2 || all[0].Keywords[0] != "цена" || all[0].Keywords[1] != "стоимость" {
		t.Errorf("Expected keywords round-trip, got %v", all[0].Keywords)
	}
	if all[0].Answer != "от 5000₽" {
		t.Errorf("Expected answer round-trip, got %q", all[0].Answer)
	}
	if all[0].CreatedAt.IsZero() {
		t.Error("Expected a creation timestamp")
	}
}

func TestKnowledgeRepo_Count(t *testing.T) {
	repo, err := NewKnowledgeRepo(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 entries in a fresh store, got %d", count)
	}

	if err := repo.Append(ctx, &domain.KnowledgeEntry{Keywords: []string{"баня"}, Answer: "ответ"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	count, err = repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entry, got %d", count)
	}
}

func TestKnowledgeRepo_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	ctx := context.Background()

	repo, err := NewKnowledgeRepo(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	if err := repo.Append(ctx, &domain.KnowledgeEntry{Keywords: []string{"трансфер"}, Answer: "по запросу"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	repo.Close()

	reopened, err := NewKnowledgeRepo(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen repo: %v", err)
	}
	defer reopened.Close()

	all, err := reopened.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 || all[0].Answer != "по запросу" {
		t.Errorf("Expected the entry to survive a reopen, got %v", all)
	}
}

func TestSplitKeywords(t *testing.T) {
	got := splitKeywords("цена, стоимость ,,  ")
	if len(got) != 2 || got[0] != "цена" || got[1] != "стоимость" {
		t.Errorf("Expected [цена стоимость], got %v", got)
	}
	if splitKeywords("") != nil {
		t.Error("Expected nil for an empty string")
	}
}
