// Package settings owns the per-group configuration records: feature
// toggles, result limits, blocked users, and the running counters shown in
// the stats views.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collalearn/internal/models"
)

// ErrGroupNotFound is returned when the group has not been registered.
var ErrGroupNotFound = errors.New("group not found")

// Store reads and writes group records.
type Store struct {
	db *sql.DB
}

// NewStore builds a settings store over the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertGroup registers the group on first contact and refreshes its title
// and last-seen time afterwards. New groups receive the typed defaults.
func (s *Store) UpsertGroup(ctx context.Context, chatID int64, title string) error {
	now := time.Now().UTC()
	def := models.DefaultGroupSettings()
	blocked, err := json.Marshal([]int64{})
	if err != nil {
		return fmt.Errorf("encode blocked users: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE `groups` SET title = ?, last_seen_at = ? WHERE chat_id = ?",
		title, now, chatID,
	)
	if err != nil {
		return fmt.Errorf("touch group: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO `groups` (chat_id, title, ai_enabled, summarization_enabled, explanation_enabled, quiz_enabled, auto_tag_enabled, admin_only_indexing, max_search_results, blocked_users, total_files, total_ai_requests, created_at, last_seen_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)",
		chatID, title,
		def.AIEnabled, def.SummarizationEnabled, def.ExplanationEnabled,
		def.QuizEnabled, def.AutoTagEnabled, def.AdminOnlyIndexing,
		def.MaxSearchResults, string(blocked), now, now,
	)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// GetGroup loads one group record, including settings and counters.
func (s *Store) GetGroup(ctx context.Context, chatID int64) (*models.Group, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT chat_id, title, ai_enabled, summarization_enabled, explanation_enabled, quiz_enabled, auto_tag_enabled, admin_only_indexing, max_search_results, blocked_users, total_files, total_ai_requests, created_at, last_seen_at "+
			"FROM `groups` WHERE chat_id = ?",
		chatID,
	)
	return scanGroup(row)
}

// ListGroups returns registered groups, newest first, with offset pagination.
func (s *Store) ListGroups(ctx context.Context, offset, limit int) ([]models.Group, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, title, ai_enabled, summarization_enabled, explanation_enabled, quiz_enabled, auto_tag_enabled, admin_only_indexing, max_search_results, blocked_users, total_files, total_ai_requests, created_at, last_seen_at "+
			"FROM `groups` ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// UpdateSettings replaces the group's settings with the supplied values.
// MaxSearchResults is validated against the configured cap by the caller.
func (s *Store) UpdateSettings(ctx context.Context, chatID int64, settings models.GroupSettings) error {
	blocked := settings.BlockedUsers
	if blocked == nil {
		blocked = []int64{}
	}
	encoded, err := json.Marshal(blocked)
	if err != nil {
		return fmt.Errorf("encode blocked users: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE `groups` SET ai_enabled = ?, summarization_enabled = ?, explanation_enabled = ?, quiz_enabled = ?, auto_tag_enabled = ?, admin_only_indexing = ?, max_search_results = ?, blocked_users = ? "+
			"WHERE chat_id = ?",
		settings.AIEnabled, settings.SummarizationEnabled, settings.ExplanationEnabled,
		settings.QuizEnabled, settings.AutoTagEnabled, settings.AdminOnlyIndexing,
		settings.MaxSearchResults, string(encoded), chatID,
	)
	if err != nil {
		return fmt.Errorf("update group settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("group rows affected: %w", err)
	}
	if affected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// BlockUser adds the user to the group's block list; unlisting is Unblock.
func (s *Store) BlockUser(ctx context.Context, chatID, userID int64) error {
	return s.mutateBlocked(ctx, chatID, func(blocked []int64) []int64 {
		for _, id := range blocked {
			if id == userID {
				return blocked
			}
		}
		return append(blocked, userID)
	})
}

// UnblockUser removes the user from the group's block list.
func (s *Store) UnblockUser(ctx context.Context, chatID, userID int64) error {
	return s.mutateBlocked(ctx, chatID, func(blocked []int64) []int64 {
		out := blocked[:0]
		for _, id := range blocked {
			if id != userID {
				out = append(out, id)
			}
		}
		return out
	})
}

// mutateBlocked rewrites the block list with a compare and swap on the
// stored column, so two concurrent admin actions cannot overwrite each
// other. A lost race rereads and retries.
func (s *Store) mutateBlocked(ctx context.Context, chatID int64, mutate func([]int64) []int64) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("update blocked users: %w", err)
		}
		var raw string
		err := s.db.QueryRowContext(ctx,
			"SELECT blocked_users FROM `groups` WHERE chat_id = ?", chatID,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGroupNotFound
		}
		if err != nil {
			return fmt.Errorf("read blocked users: %w", err)
		}
		var blocked []int64
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &blocked); err != nil {
				return fmt.Errorf("decode blocked users: %w", err)
			}
		}
		next := mutate(blocked)
		if next == nil {
			next = []int64{}
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode blocked users: %w", err)
		}
		if string(encoded) == raw {
			return nil
		}
		res, err := s.db.ExecContext(ctx,
			"UPDATE `groups` SET blocked_users = ? WHERE chat_id = ? AND blocked_users = ?",
			string(encoded), chatID, raw,
		)
		if err != nil {
			return fmt.Errorf("update blocked users: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("blocked rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}
	}
}

// IncrementFiles bumps the group's file counter by delta.
func (s *Store) IncrementFiles(ctx context.Context, chatID int64, delta int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE `groups` SET total_files = total_files + ? WHERE chat_id = ?",
		delta, chatID,
	); err != nil {
		return fmt.Errorf("increment file counter: %w", err)
	}
	return nil
}

// IncrementAIRequests bumps the group's AI request counter.
func (s *Store) IncrementAIRequests(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE `groups` SET total_ai_requests = total_ai_requests + 1 WHERE chat_id = ?",
		chatID,
	); err != nil {
		return fmt.Errorf("increment ai counter: %w", err)
	}
	return nil
}

// DeleteGroup removes the group and every record scoped to it.
func (s *Store) DeleteGroup(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "DELETE FROM `groups` WHERE chat_id = ?", chatID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("group rows affected: %w", err)
	}
	if affected == 0 {
		tx.Rollback()
		return ErrGroupNotFound
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM file_tags WHERE file_id IN (SELECT id FROM files WHERE group_id = ?)`, chatID); err != nil {
		return fmt.Errorf("delete group file tags: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM files WHERE group_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete group files: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM search_sessions WHERE group_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete group sessions: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM ai_logs WHERE group_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete group ai logs: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete group: %w", err)
	}
	return nil
}

// UpsertUser refreshes the user's profile and group membership.
func (s *Store) UpsertUser(ctx context.Context, user models.User, chatID int64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, first_name = ?, last_seen_at = ? WHERE user_id = ?`,
		user.Username, user.FirstName, now, user.UserID,
	)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO users (user_id, username, first_name, first_seen_at, last_seen_at) VALUES (?, ?, ?, ?, ?)`,
			user.UserID, user.Username, user.FirstName, now, now,
		); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
	}
	if chatID != 0 {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM user_groups WHERE user_id = ? AND chat_id = ?`,
			user.UserID, chatID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("check group membership: %w", err)
		}
		if n == 0 {
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO user_groups (user_id, chat_id) VALUES (?, ?)`,
				user.UserID, chatID,
			); err != nil {
				return fmt.Errorf("link user to group: %w", err)
			}
		}
	}
	return nil
}

// GlobalStats aggregates bot-wide counters.
type GlobalStats struct {
	TotalGroups     int64 `json:"total_groups"`
	TotalUsers      int64 `json:"total_users"`
	TotalFiles      int64 `json:"total_files"`
	TotalAIRequests int64 `json:"total_ai_requests"`
}

// GetGlobalStats counts groups, users, live files, and logged AI requests.
func (s *Store) GetGlobalStats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM `groups`").Scan(&stats.TotalGroups); err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE deleted = 0`).Scan(&stats.TotalFiles); err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_logs`).Scan(&stats.TotalAIRequests); err != nil {
		return nil, fmt.Errorf("count ai logs: %w", err)
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var (
		g       models.Group
		blocked string
	)
	err := row.Scan(
		&g.ChatID, &g.Title,
		&g.Settings.AIEnabled, &g.Settings.SummarizationEnabled, &g.Settings.ExplanationEnabled,
		&g.Settings.QuizEnabled, &g.Settings.AutoTagEnabled, &g.Settings.AdminOnlyIndexing,
		&g.Settings.MaxSearchResults, &blocked,
		&g.Stats.TotalFiles, &g.Stats.TotalAIRequests,
		&g.CreatedAt, &g.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	if blocked != "" {
		if err := json.Unmarshal([]byte(blocked), &g.Settings.BlockedUsers); err != nil {
			return nil, fmt.Errorf("decode blocked users: %w", err)
		}
	}
	if g.Settings.MaxSearchResults < 1 {
		g.Settings.MaxSearchResults = models.DefaultGroupSettings().MaxSearchResults
	}
	return &g, nil
}
