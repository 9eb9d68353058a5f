// Package ailog records completed AI requests for the usage views.
package ailog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"collalearn/internal/models"
)

const snippetLimit = 200

// Store appends and reads AI request log entries.
type Store struct {
	db *sql.DB
}

// NewStore builds a log store over the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one entry. Only a short snippet of the input is kept.
func (s *Store) Record(ctx context.Context, userID, groupID int64, kind string, text string) error {
	if len(text) > snippetLimit {
		cut := snippetLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_logs (user_id, group_id, prompt_kind, text_snippet, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, groupID, kind, text, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record ai log: %w", err)
	}
	return nil
}

// Recent returns the group's latest entries, newest first.
func (s *Store) Recent(ctx context.Context, groupID int64, limit int) ([]models.AILog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, group_id, prompt_kind, text_snippet, created_at
		 FROM ai_logs WHERE group_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ai logs: %w", err)
	}
	defer rows.Close()
	var out []models.AILog
	for rows.Next() {
		var entry models.AILog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.GroupID,
			&entry.PromptKind, &entry.TextSnippet, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ai log: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// CountByKind breaks the group's usage down per operation.
func (s *Store) CountByKind(ctx context.Context, groupID int64) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt_kind, COUNT(*) FROM ai_logs WHERE group_id = ? GROUP BY prompt_kind`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("count ai logs: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan ai log count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
