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

// questionRepo implements the QuestionRepo on SQLite
type questionRepo struct {
	db *sql.DB
}

// NewQuestionRepo creates a new question repository
func NewQuestionRepo(dbPath string) (repo.QuestionRepo, error) {
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
		CREATE TABLE IF NOT EXISTS questions (
			user_id TEXT PRIMARY KEY,
			user_info TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			answered_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &questionRepo{db: db}, nil
}

// SavePending stores a pending question, replacing any record for the user
func (r *questionRepo) SavePending(ctx context.Context, q *domain.PendingQuestion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO questions (user_id, user_info, question, answer, keywords, created_at, answered_at)
		VALUES (?, ?, ?, '', '', ?, 0)
	`, q.UserID, q.UserInfo, q.Question, q.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save pending question: %w", err)
	}
	return nil
}

// FillAnswer records the delivered staff answer
func (r *questionRepo) FillAnswer(ctx context.Context, userID, answer string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE questions SET answer = ?, answered_at = ? WHERE user_id = ? AND answer = ''
	`, answer, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FillKeywords records the keywords the answer was committed under
func (r *questionRepo) FillKeywords(ctx context.Context, userID string, keywords []string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE questions SET keywords = ? WHERE user_id = ?
	`, strings.Join(keywords, ","), userID)
	if err != nil {
		return fmt.Errorf("failed to record keywords: %w", err)
	}
	return nil
}

// Delete removes the record for a user
func (r *questionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

// ListPending returns unanswered records in insertion order
func (r *questionRepo) ListPending(ctx context.Context) ([]*domain.PendingQuestion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, user_info, question, created_at
		FROM questions
		WHERE answer = ''
		ORDER BY created_at, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending questions: %w", err)
	}
	defer rows.Close()

	var list []*domain.PendingQuestion
	for rows.Next() {
		var q domain.PendingQuestion
		var createdAt int64
		if err := rows.Scan(&q.UserID, &q.UserInfo, &q.Question, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending question: %w", err)
		}
		q.CreatedAt = time.Unix(createdAt, 0)
		list = append(list, &q)
	}
	return list, rows.Err()
}

// Close closes the database connection
func (r *questionRepo) Close() error {
	return r.db.Close()
}
