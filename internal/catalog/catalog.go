// Package catalog stores the indexed file records and their tags.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"collalearn/internal/models"
)

// ErrFileNotFound is returned when no live record matches the lookup.
var ErrFileNotFound = errors.New("file not found")

// Store persists file records.
type Store struct {
	db *sql.DB
}

// NewStore builds a catalog store over the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveFile inserts the record and its tag rows. Tags are normalized before
// writing; the record's ID is filled in on return.
func (s *Store) SaveFile(ctx context.Context, file *models.FileRecord) error {
	file.Tags = NormalizeTags(file.Tags)
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO files (remote_file_id, remote_unique_id, file_name, mime_type, caption, uploader_id, uploader_username, group_id, message_id, uploaded_at, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		file.RemoteFileID, file.RemoteUniqueID, file.FileName, file.MimeType,
		file.Caption, file.UploaderID, file.UploaderUsername,
		file.GroupID, file.MessageID, file.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("file insert id: %w", err)
	}
	file.ID = id
	if err = insertTags(ctx, tx, id, file.Tags, "user"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save file: %w", err)
	}
	return nil
}

func insertTags(ctx context.Context, tx *sql.Tx, fileID int64, tags []string, source string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_tags (file_id, tag, source) VALUES (?, ?, ?)`,
			fileID, tag, source,
		); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

// GetByID loads one live file record with its tags.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.FileRecord, error) {
	return s.getOne(ctx, `WHERE id = ? AND deleted = 0`, id)
}

// GetByMessage finds the record indexed from a specific chat message. Replies
// to an earlier upload resolve through this lookup.
func (s *Store) GetByMessage(ctx context.Context, groupID int64, messageID int64) (*models.FileRecord, error) {
	return s.getOne(ctx, `WHERE group_id = ? AND message_id = ? AND deleted = 0`, groupID, messageID)
}

// Latest returns the most recently indexed live file in the group.
func (s *Store) Latest(ctx context.Context, groupID int64) (*models.FileRecord, error) {
	return s.getOne(ctx, `WHERE group_id = ? AND deleted = 0 ORDER BY uploaded_at DESC, id DESC LIMIT 1`, groupID)
}

func (s *Store) getOne(ctx context.Context, clause string, args ...any) (*models.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, remote_file_id, remote_unique_id, file_name, mime_type, caption, uploader_id, uploader_username, group_id, message_id, uploaded_at, deleted
		 FROM files `+clause, args...)
	var f models.FileRecord
	err := row.Scan(
		&f.ID, &f.RemoteFileID, &f.RemoteUniqueID, &f.FileName, &f.MimeType,
		&f.Caption, &f.UploaderID, &f.UploaderUsername,
		&f.GroupID, &f.MessageID, &f.UploadedAt, &f.Deleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	if err := s.loadTags(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) loadTags(ctx context.Context, f *models.FileRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, source FROM file_tags WHERE file_id = ? ORDER BY tag`, f.ID)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	f.Tags = nil
	f.AITags = nil
	for rows.Next() {
		var tag, source string
		if err := rows.Scan(&tag, &source); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		if source == "ai" {
			f.AITags = append(f.AITags, tag)
		} else {
			f.Tags = append(f.Tags, tag)
		}
	}
	return rows.Err()
}

// AddTags merges normalized tags into the file's tag set. Existing tags are
// kept; the combined set stays within MaxTagsPerFile.
func (s *Store) AddTags(ctx context.Context, fileID int64, tags []string) ([]string, error) {
	return s.mergeTags(ctx, fileID, tags, "user")
}

// AddAITags records model suggested tags separately from user tags.
func (s *Store) AddAITags(ctx context.Context, fileID int64, tags []string) ([]string, error) {
	return s.mergeTags(ctx, fileID, tags, "ai")
}

func (s *Store) mergeTags(ctx context.Context, fileID int64, tags []string, source string) ([]string, error) {
	tags = NormalizeTags(tags)
	f, err := s.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]struct{}, len(f.Tags)+len(f.AITags))
	total := len(f.Tags) + len(f.AITags)
	for _, t := range f.Tags {
		existing[t] = struct{}{}
	}
	for _, t := range f.AITags {
		existing[t] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var added []string
	for _, tag := range tags {
		if _, ok := existing[tag]; ok {
			continue
		}
		if total >= MaxTagsPerFile {
			break
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO file_tags (file_id, tag, source) VALUES (?, ?, ?)`,
			fileID, tag, source,
		); err != nil {
			return nil, fmt.Errorf("insert tag: %w", err)
		}
		existing[tag] = struct{}{}
		added = append(added, tag)
		total++
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tags: %w", err)
	}
	return added, nil
}

// RemoveTag deletes one tag from the file, whatever its source.
func (s *Store) RemoveTag(ctx context.Context, fileID int64, tag string) error {
	normalized := NormalizeTags([]string{tag})
	if len(normalized) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM file_tags WHERE file_id = ? AND tag = ?`,
		fileID, normalized[0],
	); err != nil {
		return fmt.Errorf("remove tag: %w", err)
	}
	return nil
}

// SoftDelete hides the record from search and lookups without losing the row.
func (s *Store) SoftDelete(ctx context.Context, fileID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET deleted = 1 WHERE id = ? AND deleted = 0`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("file rows affected: %w", err)
	}
	if affected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// UploaderCount pairs an uploader with the number of live files they indexed.
type UploaderCount struct {
	UploaderID int64  `json:"uploader_id"`
	Username   string `json:"username"`
	Count      int64  `json:"count"`
}

// TopUploaders ranks the group's uploaders by live file count.
func (s *Store) TopUploaders(ctx context.Context, groupID int64, limit int) ([]UploaderCount, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT uploader_id, uploader_username, COUNT(*) AS n
		 FROM files WHERE group_id = ? AND deleted = 0
		 GROUP BY uploader_id, uploader_username
		 ORDER BY n DESC, uploader_id ASC LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top uploaders: %w", err)
	}
	defer rows.Close()
	var out []UploaderCount
	for rows.Next() {
		var u UploaderCount
		if err := rows.Scan(&u.UploaderID, &u.Username, &u.Count); err != nil {
			return nil, fmt.Errorf("scan uploader: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TagCount pairs a tag with how many live files in the group carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// TagDistribution lists the group's most used tags.
func (s *Store) TagDistribution(ctx context.Context, groupID int64, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ft.tag, COUNT(*) AS n
		 FROM file_tags ft
		 JOIN files f ON f.id = ft.file_id
		 WHERE f.group_id = ? AND f.deleted = 0
		 GROUP BY ft.tag
		 ORDER BY n DESC, ft.tag ASC LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tag distribution: %w", err)
	}
	defer rows.Close()
	var out []TagCount
	for rows.Next() {
		var t TagCount
		if err := rows.Scan(&t.Tag, &t.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountFiles returns the number of live files in the group.
func (s *Store) CountFiles(ctx context.Context, groupID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE group_id = ? AND deleted = 0`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count group files: %w", err)
	}
	return n, nil
}
