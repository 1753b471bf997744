package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// knowledgeRepo implements the KnowledgeRepo on SQLite
type knowledgeRepo struct {
	db *sql.DB
}

// NewKnowledgeRepo creates a new knowledge repository
func NewKnowledgeRepo(dbPath string) (repo.KnowledgeRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keywords TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &knowledgeRepo{db: db}, nil
}

// All returns every stored entry in insertion order
func (r *knowledgeRepo) All(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, keywords, answer, created_at
		FROM knowledge
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.KnowledgeEntry
	for rows.Next() {
		var entry domain.KnowledgeEntry
		var keywords string
		var createdAt int64
		if err := rows.Scan(&entry.ID, &keywords, &entry.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		entry.Keywords = splitKeywords(keywords)
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Append writes a new immutable entry
func (r *knowledgeRepo) Append(ctx context.Context, entry *domain.KnowledgeEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO knowledge (keywords, answer, created_at) VALUES (?, ?, ?)
	`, strings.Join(entry.Keywords, ","), entry.Answer, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append knowledge entry: %w", err)
	}
	return nil
}

// Count returns the number of stored entries
func (r *knowledgeRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge entries: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (r *knowledgeRepo) Close() error {
	return r.db.Close()
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
