// Package session keeps the short lived state behind search result pages:
// which results a search produced, who may page through them, and when the
// whole thing stops being valid.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"collalearn/internal/models"
)

// Errors returned by session lookups. An expired session is reported as
// ErrNotFound so a caller cannot tell it apart from one that never existed.
var (
	ErrNotFound        = errors.New("search session not found")
	ErrUnauthorized    = errors.New("search session belongs to another user")
	ErrIndexOutOfRange = errors.New("result index out of range")
)

// Manager creates and resolves search sessions.
type Manager struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewManager builds a session manager. ttl bounds how long a session stays
// resolvable after creation.
func NewManager(db *sql.DB, ttl time.Duration) *Manager {
	return &Manager{db: db, ttl: ttl, now: time.Now}
}

// Create stores a new session over the given result keys and returns its id.
// Creating a session never touches the requester's earlier sessions; those
// keep working until their own expiry.
func (m *Manager) Create(ctx context.Context, requesterID, groupID int64, results []string) (string, error) {
	if results == nil {
		results = []string{}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("encode session results: %w", err)
	}
	id := uuid.NewString()
	now := m.now().UTC()
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO search_sessions (session_id, requester_id, group_id, results, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, requesterID, groupID, string(encoded), now, now.Add(m.ttl),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// Get loads the session if it is alive and owned by the requester. Absent
// and expired sessions both come back as ErrNotFound; the ownership check
// runs only on sessions that are actually alive.
func (m *Manager) Get(ctx context.Context, sessionID string, requesterID int64) (*models.SearchSession, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT session_id, requester_id, group_id, results, created_at, expires_at
		 FROM search_sessions WHERE session_id = ? AND expires_at > ?`,
		sessionID, m.now().UTC(),
	)
	var (
		s       models.SearchSession
		encoded string
	)
	err := row.Scan(&s.SessionID, &s.RequesterID, &s.GroupID, &encoded, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if s.RequesterID != requesterID {
		return nil, ErrUnauthorized
	}
	if err := json.Unmarshal([]byte(encoded), &s.Results); err != nil {
		return nil, fmt.Errorf("decode session results: %w", err)
	}
	return &s, nil
}

// GetPage returns one page of the session's results. Pages are zero based;
// a page past the end is an empty slice, not an error.
func (m *Manager) GetPage(ctx context.Context, sessionID string, requesterID int64, page, pageSize int) ([]string, int, error) {
	if pageSize <= 0 {
		return nil, 0, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	s, err := m.Get(ctx, sessionID, requesterID)
	if err != nil {
		return nil, 0, err
	}
	total := len(s.Results)
	if page < 0 {
		page = 0
	}
	// Compare against the page count before multiplying; page*pageSize can
	// overflow for attacker-sized page numbers.
	if page >= (total+pageSize-1)/pageSize {
		return []string{}, total, nil
	}
	start := page * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	return s.Results[start:end], total, nil
}

// ResolveIndex maps a position in the session's result list back to its key.
func (m *Manager) ResolveIndex(ctx context.Context, sessionID string, requesterID int64, index int) (string, error) {
	s, err := m.Get(ctx, sessionID, requesterID)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(s.Results) {
		return "", ErrIndexOutOfRange
	}
	return s.Results[index], nil
}

// SweepExpired deletes every session past its expiry and reports how many
// went. Running it twice in a row deletes nothing the second time.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	res, err := m.db.ExecContext(ctx,
		`DELETE FROM search_sessions WHERE expires_at <= ?`, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return n, nil
}

// Sweeper is anything with expired rows to reclaim.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// StartSweeper runs each sweeper on a ticker until the context is canceled.
// Reads already filter on expiry, so the sweep only reclaims storage.
func StartSweeper(ctx context.Context, interval time.Duration, sweepers ...Sweeper) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range sweepers {
					n, err := s.SweepExpired(ctx)
					if err != nil {
						log.Printf("expiry sweep failed: %v", err)
						continue
					}
					if n > 0 {
						log.Printf("expiry sweep removed %d rows", n)
					}
				}
			}
		}
	}()
}
