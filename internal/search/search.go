// Package search runs keyword queries over the indexed files of a group.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"collalearn/internal/models"
)

// Result limits. A request above the cap is clamped, not rejected.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// ErrInvalidQuery is returned for empty or whitespace only queries.
var ErrInvalidQuery = errors.New("search query is empty")

// Engine matches queries against tags, file names, and captions.
type Engine struct {
	db *sql.DB
}

// NewEngine builds a search engine over the shared database handle.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Search tokenizes the query on whitespace and returns live files where any
// token is a case-insensitive substring of a tag, the file name, or the
// caption. Results come back newest first; ties break on ascending id so the
// ordering is stable across identical calls.
func (e *Engine) Search(ctx context.Context, groupID int64, query string, limit int) ([]models.FileRecord, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil, ErrInvalidQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var (
		clauses []string
		args    = []any{groupID}
	)
	for _, token := range tokens {
		pattern := "%" + escapeLike(token) + "%"
		clauses = append(clauses,
			`(LOWER(f.file_name) LIKE ? ESCAPE '\' OR LOWER(f.caption) LIKE ? ESCAPE '\' OR EXISTS (
				SELECT 1 FROM file_tags ft WHERE ft.file_id = f.id AND ft.tag LIKE ? ESCAPE '\'
			))`)
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, limit)

	q := `SELECT f.id, f.remote_file_id, f.remote_unique_id, f.file_name, f.mime_type, f.caption,
	             f.uploader_id, f.uploader_username, f.group_id, f.message_id, f.uploaded_at, f.deleted
	      FROM files f
	      WHERE f.group_id = ? AND f.deleted = 0 AND (` + strings.Join(clauses, " OR ") + `)
	      ORDER BY f.uploaded_at DESC, f.id ASC
	      LIMIT ?`

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	defer rows.Close()

	results := []models.FileRecord{}
	var ids []int64
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(
			&f.ID, &f.RemoteFileID, &f.RemoteUniqueID, &f.FileName, &f.MimeType,
			&f.Caption, &f.UploaderID, &f.UploaderUsername,
			&f.GroupID, &f.MessageID, &f.UploadedAt, &f.Deleted,
		); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	if err := e.attachTags(ctx, results, ids); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) attachTags(ctx context.Context, results []models.FileRecord, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	byID := make(map[int64]*models.FileRecord, len(results))
	for i := range results {
		args[i] = ids[i]
		byID[ids[i]] = &results[i]
	}
	rows, err := e.db.QueryContext(ctx,
		`SELECT file_id, tag, source FROM file_tags WHERE file_id IN (`+placeholders+`) ORDER BY tag`,
		args...)
	if err != nil {
		return fmt.Errorf("load result tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			fileID      int64
			tag, source string
		)
		if err := rows.Scan(&fileID, &tag, &source); err != nil {
			return fmt.Errorf("scan result tag: %w", err)
		}
		f, ok := byID[fileID]
		if !ok {
			continue
		}
		if source == "ai" {
			f.AITags = append(f.AITags, tag)
		} else {
			f.Tags = append(f.Tags, tag)
		}
	}
	return rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
