package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"collalearn/internal/ai"
	"collalearn/internal/catalog"
	"collalearn/internal/models"
	"collalearn/internal/session"
)

func (r *Router) handleCallback(ctx context.Context, cb Callback) []Reply {
	group, err := r.groups.GetGroup(ctx, cb.ChatID)
	if err != nil {
		log.Printf("load group %d for callback: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	if group.Settings.IsBlocked(cb.From.ID) {
		return nil
	}

	action, rest, _ := strings.Cut(cb.Data, ":")
	switch action {
	case "file":
		return r.cbFileSelect(ctx, cb, rest)
	case "search_page":
		return r.cbSearchPage(ctx, cb, rest)
	case "add_tags":
		return r.cbAddTags(ctx, cb, rest)
	case "ai_tag":
		return r.cbAITag(ctx, cb, group, rest)
	case "confirm_ai_tag":
		return r.cbConfirmAITag(ctx, cb, rest)
	case "skip_tag":
		return []Reply{textReply(cb.ChatID, "Done.")}
	case "admin":
		return r.cbAdmin(ctx, cb, group, rest)
	case "global_admin":
		return r.cbGlobalAdmin(ctx, cb, rest)
	default:
		return nil
	}
}

// sessionFailureReply maps session lookup errors onto user messages. Expiry
// and absence read the same to the requester.
func sessionFailureReply(chatID int64, err error) []Reply {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrIndexOutOfRange):
		return []Reply{textReply(chatID, msgSessionExpired)}
	case errors.Is(err, session.ErrUnauthorized):
		return []Reply{textReply(chatID, "These results belong to another user. Run your own search.")}
	default:
		log.Printf("session lookup: %v", err)
		return []Reply{textReply(chatID, msgInternalError)}
	}
}

func (r *Router) cbFileSelect(ctx context.Context, cb Callback, rest string) []Reply {
	sid, idxStr, ok := strings.Cut(rest, ":")
	if !ok {
		return nil
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return nil
	}
	key, err := r.sessions.ResolveIndex(ctx, sid, cb.From.ID, idx)
	if err != nil {
		return sessionFailureReply(cb.ChatID, err)
	}
	fileID, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		log.Printf("session %s holds malformed key %q", sid, key)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	file, err := r.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			return []Reply{textReply(cb.ChatID, "That file is no longer available.")}
		}
		log.Printf("load file %d: %v", fileID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	text := fileLabel(*file)
	if all := append(append([]string{}, file.Tags...), file.AITags...); len(all) > 0 {
		text += "\nTags: " + strings.Join(all, ", ")
	}
	return []Reply{{ChatID: cb.ChatID, Text: text, SendFileID: file.RemoteFileID}}
}

func (r *Router) cbSearchPage(ctx context.Context, cb Callback, rest string) []Reply {
	sid, pageStr, ok := strings.Cut(rest, ":")
	if !ok {
		return nil
	}
	pageNum, err := strconv.Atoi(pageStr)
	if err != nil || pageNum < 0 {
		return nil
	}
	size := r.cfg.Limits.FilesPerResultsPage
	keys, total, err := r.sessions.GetPage(ctx, sid, cb.From.ID, pageNum, size)
	if err != nil {
		return sessionFailureReply(cb.ChatID, err)
	}
	if len(keys) == 0 {
		return []Reply{textReply(cb.ChatID, "No more results.")}
	}
	var page []models.FileRecord
	for _, key := range keys {
		fileID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		file, err := r.files.GetByID(ctx, fileID)
		if err != nil {
			// Deleted since the search ran; keep a placeholder so the
			// button indices stay aligned with the session.
			page = append(page, models.FileRecord{ID: fileID, FileName: "(removed)"})
			continue
		}
		page = append(page, *file)
	}
	return []Reply{r.renderResultsPage(cb.ChatID, sid, page, pageNum, total)}
}

func (r *Router) cbAddTags(ctx context.Context, cb Callback, rest string) []Reply {
	fileID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return nil
	}
	if _, err := r.files.GetByID(ctx, fileID); err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			return []Reply{textReply(cb.ChatID, "That file is no longer indexed.")}
		}
		log.Printf("load file %d: %v", fileID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	err = r.pending.Put(ctx, models.PendingInput{
		UserID:          cb.From.ID,
		ChatID:          cb.ChatID,
		AnchorMessageID: cb.MessageID,
		Kind:            models.PendingTags,
		Payload:         strconv.FormatInt(fileID, 10),
	})
	if err != nil {
		log.Printf("store pending tags: %v", err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	return []Reply{{
		ChatID:           cb.ChatID,
		Text:             "Reply to the message above with your tags, separated by commas or spaces.",
		ReplyToMessageID: cb.MessageID,
		ExpectReply:      true,
	}}
}

func (r *Router) cbAITag(ctx context.Context, cb Callback, group *models.Group, rest string) []Reply {
	if !group.Settings.AIEnabled || !group.Settings.AutoTagEnabled {
		return []Reply{textReply(cb.ChatID, "AI tagging is disabled in this group.")}
	}
	fileID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return nil
	}
	file, err := r.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			return []Reply{textReply(cb.ChatID, "That file is no longer indexed.")}
		}
		log.Printf("load file %d: %v", fileID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	text, err := r.extractor.ExtractText(ctx, file.RemoteFileID, file.MimeType)
	if err != nil {
		log.Printf("extract text from file %d: %v", file.ID, err)
		return []Reply{textReply(cb.ChatID, "I could not read that file's content.")}
	}
	tags, err := r.gateway.SuggestTags(ctx, text, file.FileName)
	if err != nil {
		return []Reply{aiFailureReply(cb.ChatID, ai.KindSuggestTags, err)}
	}
	r.recordAIUseBy(ctx, cb.From.ID, cb.ChatID, ai.KindSuggestTags, file.FileName)
	if len(tags) == 0 {
		return []Reply{textReply(cb.ChatID, "The AI could not suggest any tags for this file.")}
	}
	return []Reply{{
		ChatID: cb.ChatID,
		Text:   "Suggested tags: " + strings.Join(tags, ", "),
		Buttons: [][]Button{
			{{Label: "Accept These Tags", Data: fmt.Sprintf("confirm_ai_tag:%d:%s", fileID, strings.Join(tags, ","))}},
			{{Label: "Edit Manually", Data: fmt.Sprintf("add_tags:%d", fileID)}},
			{{Label: "Cancel", Data: fmt.Sprintf("skip_tag:%d", fileID)}},
		},
	}}
}

func (r *Router) cbConfirmAITag(ctx context.Context, cb Callback, rest string) []Reply {
	idStr, tagList, ok := strings.Cut(rest, ":")
	if !ok {
		return nil
	}
	fileID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}
	added, err := r.files.AddAITags(ctx, fileID, strings.Split(tagList, ","))
	if err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			return []Reply{textReply(cb.ChatID, "That file is no longer indexed.")}
		}
		log.Printf("add ai tags to file %d: %v", fileID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	if len(added) == 0 {
		return []Reply{textReply(cb.ChatID, "Those tags are already on the file.")}
	}
	return []Reply{textReply(cb.ChatID, "Added AI tags: "+strings.Join(added, ", "))}
}

func (r *Router) recordAIUseBy(ctx context.Context, userID, chatID int64, kind ai.PromptKind, text string) {
	if err := r.logs.Record(ctx, userID, chatID, string(kind), text); err != nil {
		log.Printf("record ai log: %v", err)
	}
	if err := r.groups.IncrementAIRequests(ctx, chatID); err != nil {
		log.Printf("bump ai counter: %v", err)
	}
}
