package bot

import (
	"context"
	"fmt"
	"log"

	"collalearn/internal/catalog"
	"collalearn/internal/models"
)

// supportedMimeTypes lists the document types the bot indexes.
var supportedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/msword": {},
	"text/plain":         {},
	"image/jpeg":         {},
	"image/jpg":          {},
	"image/png":          {},
}

func (r *Router) handleUpload(ctx context.Context, msg Message, group *models.Group) []Reply {
	doc := msg.Document
	if group.Settings.AdminOnlyIndexing {
		isAdmin, err := r.checker.IsGroupAdmin(ctx, msg.Chat.ID, msg.From.ID)
		if err != nil {
			log.Printf("admin check for upload in group %d: %v", msg.Chat.ID, err)
			return []Reply{textReply(msg.Chat.ID, msgInternalError)}
		}
		if !isAdmin {
			return []Reply{textReply(msg.Chat.ID, "Only group admins can index files in this group.")}
		}
	}
	if _, ok := supportedMimeTypes[doc.MimeType]; !ok {
		return []Reply{textReply(msg.Chat.ID,
			"Sorry, this file type is not supported. I accept PDF, Word, PowerPoint, text, and image files.")}
	}
	maxBytes := r.cfg.Limits.MaxFileSizeMB * 1024 * 1024
	if doc.SizeBytes > maxBytes {
		return []Reply{textReply(msg.Chat.ID,
			fmt.Sprintf("This file is too large. The limit is %d MB.", r.cfg.Limits.MaxFileSizeMB))}
	}

	file := &models.FileRecord{
		RemoteFileID:     doc.FileID,
		RemoteUniqueID:   doc.UniqueFileID,
		FileName:         doc.FileName,
		MimeType:         doc.MimeType,
		Caption:          msg.Caption,
		Tags:             catalog.ExtractHashtags(msg.Caption),
		UploaderID:       msg.From.ID,
		UploaderUsername: msg.From.Username,
		GroupID:          msg.Chat.ID,
		MessageID:        msg.MessageID,
	}
	if err := r.files.SaveFile(ctx, file); err != nil {
		log.Printf("index file in group %d: %v", msg.Chat.ID, err)
		return []Reply{textReply(msg.Chat.ID, msgInternalError)}
	}
	if err := r.groups.IncrementFiles(ctx, msg.Chat.ID, 1); err != nil {
		log.Printf("bump file counter: %v", err)
	}

	text := fmt.Sprintf("Indexed %s.", fileLabel(*file))
	if len(file.Tags) > 0 {
		text = fmt.Sprintf("Indexed %s with tags from the caption.", fileLabel(*file))
	}
	buttons := [][]Button{
		{{Label: "Add Tags", Data: fmt.Sprintf("add_tags:%d", file.ID)}},
	}
	if group.Settings.AIEnabled && group.Settings.AutoTagEnabled {
		buttons = append(buttons, []Button{{Label: "AI Auto-Tag", Data: fmt.Sprintf("ai_tag:%d", file.ID)}})
	}
	buttons = append(buttons, []Button{{Label: "Done", Data: fmt.Sprintf("skip_tag:%d", file.ID)}})
	return []Reply{{
		ChatID:           msg.Chat.ID,
		Text:             text,
		ReplyToMessageID: msg.MessageID,
		Buttons:          buttons,
	}}
}
