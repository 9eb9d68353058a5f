package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"collalearn/internal/models"
)

// ErrNoPendingInput is returned when no live prompt matches the reply.
var ErrNoPendingInput = errors.New("no pending input")

// PendingStore tracks prompts waiting for a user's next reply, keyed by
// (user, chat, prompt message). Entries expire like search sessions do.
type PendingStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewPendingStore builds a pending input store with the given entry TTL.
func NewPendingStore(db *sql.DB, ttl time.Duration) *PendingStore {
	return &PendingStore{db: db, ttl: ttl, now: time.Now}
}

// Put records a prompt, replacing any earlier prompt with the same key.
func (p *PendingStore) Put(ctx context.Context, input models.PendingInput) error {
	now := p.now().UTC()
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM pending_inputs WHERE user_id = ? AND chat_id = ? AND anchor_message_id = ?`,
		input.UserID, input.ChatID, input.AnchorMessageID,
	); err != nil {
		return fmt.Errorf("replace pending input: %w", err)
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO pending_inputs (user_id, chat_id, anchor_message_id, kind, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		input.UserID, input.ChatID, input.AnchorMessageID,
		string(input.Kind), input.Payload, now, now.Add(p.ttl),
	); err != nil {
		return fmt.Errorf("insert pending input: %w", err)
	}
	return nil
}

// Take resolves and consumes the prompt behind a reply. Expired entries are
// indistinguishable from absent ones.
func (p *PendingStore) Take(ctx context.Context, userID, chatID, anchorMessageID int64) (*models.PendingInput, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT user_id, chat_id, anchor_message_id, kind, payload, created_at, expires_at
		 FROM pending_inputs
		 WHERE user_id = ? AND chat_id = ? AND anchor_message_id = ? AND expires_at > ?`,
		userID, chatID, anchorMessageID, p.now().UTC(),
	)
	var (
		input models.PendingInput
		kind  string
	)
	err := row.Scan(&input.UserID, &input.ChatID, &input.AnchorMessageID,
		&kind, &input.Payload, &input.CreatedAt, &input.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingInput
		}
		return nil, fmt.Errorf("scan pending input: %w", err)
	}
	input.Kind = models.PendingInputKind(kind)
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM pending_inputs WHERE user_id = ? AND chat_id = ? AND anchor_message_id = ?`,
		userID, chatID, anchorMessageID,
	); err != nil {
		return nil, fmt.Errorf("consume pending input: %w", err)
	}
	return &input, nil
}

// SweepExpired removes stale prompts and reports how many were deleted.
func (p *PendingStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM pending_inputs WHERE expires_at <= ?`, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep pending inputs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pending sweep rows affected: %w", err)
	}
	return n, nil
}
