package models

import "time"

// FileRecord describes one uploaded study file. The binary content itself
// stays with the chat transport; RemoteFileID is the transport's handle for
// re-sending it.
type FileRecord struct {
	ID               int64     `json:"id"`
	RemoteFileID     string    `json:"remote_file_id"`
	RemoteUniqueID   string    `json:"remote_unique_id"`
	FileName         string    `json:"file_name"`
	MimeType         string    `json:"mime_type"`
	Caption          string    `json:"caption"`
	Tags             []string  `json:"tags"`
	AITags           []string  `json:"ai_tags"`
	UploaderID       int64     `json:"uploader_id"`
	UploaderUsername string    `json:"uploader_username"`
	GroupID          int64     `json:"group_id"`
	MessageID        int64     `json:"message_id"`
	UploadedAt       time.Time `json:"uploaded_at"`
	Deleted          bool      `json:"deleted"`
}
