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
	"collalearn/internal/search"
	"collalearn/internal/session"
)

const helpText = `Here is what I can do:

/search <keywords> - find files by tag, name, or caption
/tag - reply to an indexed file to manage its tags
/summary - reply to a file to get a bullet point summary
/explain [question] - reply to a file for an explanation
/quiz [count] - reply to a file to generate quiz questions
/admin - group admin panel

Upload a document with #hashtags in the caption to index it.`

func (r *Router) handleCommand(ctx context.Context, msg Message, group *models.Group) []Reply {
	cmd, args := commandArgs(msg.Text)
	switch cmd {
	case "start":
		return []Reply{textReply(msg.Chat.ID,
			"Hi! I keep track of this group's study materials. Send /help to see what I can do.")}
	case "help":
		return []Reply{textReply(msg.Chat.ID, helpText)}
	case "search":
		return r.cmdSearch(ctx, msg, group, args)
	case "tag":
		return r.cmdTag(ctx, msg)
	case "summary":
		return r.cmdSummarize(ctx, msg, group)
	case "explain":
		return r.cmdExplain(ctx, msg, group, args)
	case "quiz":
		return r.cmdQuiz(ctx, msg, group, args)
	case "admin":
		return r.cmdAdmin(ctx, msg, group)
	case "global_admin":
		return r.cmdGlobalAdmin(ctx, msg)
	default:
		return nil
	}
}

func (r *Router) cmdSearch(ctx context.Context, msg Message, group *models.Group, query string) []Reply {
	limit := group.Settings.MaxSearchResults
	results, err := r.engine.Search(ctx, msg.Chat.ID, query, limit)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			return []Reply{textReply(msg.Chat.ID, "Usage: /search <keywords>")}
		}
		log.Printf("search in group %d: %v", msg.Chat.ID, err)
		return []Reply{textReply(msg.Chat.ID, msgInternalError)}
	}
	if len(results) == 0 {
		return []Reply{textReply(msg.Chat.ID, fmt.Sprintf("No files found for %q.", query))}
	}

	keys := make([]string, len(results))
	for i, f := range results {
		keys[i] = strconv.FormatInt(f.ID, 10)
	}
	sid, err := r.sessions.Create(ctx, msg.From.ID, msg.Chat.ID, keys)
	if err != nil {
		log.Printf("create search session: %v", err)
		return []Reply{textReply(msg.Chat.ID, msgInternalError)}
	}
	size := r.cfg.Limits.FilesPerResultsPage
	first := results[:min(size, len(results))]
	return []Reply{r.renderResultsPage(msg.Chat.ID, sid, first, 0, len(results))}
}

// renderResultsPage builds one page of result buttons plus navigation. The
// page slice holds the records for this page only; indices on the buttons
// are absolute positions in the session.
func (r *Router) renderResultsPage(chatID int64, sid string, page []models.FileRecord, pageNum, total int) Reply {
	size := r.cfg.Limits.FilesPerResultsPage
	start := pageNum * size
	var buttons [][]Button
	for i, f := range page {
		buttons = append(buttons, []Button{{
			Label: fileLabel(f),
			Data:  fmt.Sprintf("file:%s:%d", sid, start+i),
		}})
	}
	var nav []Button
	if pageNum > 0 {
		nav = append(nav, Button{Label: "Prev", Data: fmt.Sprintf("search_page:%s:%d", sid, pageNum-1)})
	}
	if start+len(page) < total {
		nav = append(nav, Button{Label: "Next", Data: fmt.Sprintf("search_page:%s:%d", sid, pageNum+1)})
	}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}
	lastPage := (total + size - 1) / size
	return Reply{
		ChatID:  chatID,
		Text:    fmt.Sprintf("Found %d files (page %d/%d):", total, pageNum+1, lastPage),
		Buttons: buttons,
	}
}

func (r *Router) cmdTag(ctx context.Context, msg Message) []Reply {
	file, reply := r.targetFile(ctx, msg, false)
	if file == nil {
		return reply
	}
	return []Reply{tagMenu(msg.Chat.ID, file)}
}

// tagMenu offers the tag actions for one file.
func tagMenu(chatID int64, file *models.FileRecord) Reply {
	text := fmt.Sprintf("Tags for %s:", fileLabel(*file))
	if len(file.Tags)+len(file.AITags) > 0 {
		all := append(append([]string{}, file.Tags...), file.AITags...)
		text = fmt.Sprintf("Tags for %s: %s", fileLabel(*file), strings.Join(all, ", "))
	}
	return Reply{
		ChatID: chatID,
		Text:   text,
		Buttons: [][]Button{
			{{Label: "Add Tags", Data: fmt.Sprintf("add_tags:%d", file.ID)}},
			{{Label: "AI Auto-Tag", Data: fmt.Sprintf("ai_tag:%d", file.ID)}},
			{{Label: "Done", Data: fmt.Sprintf("skip_tag:%d", file.ID)}},
		},
	}
}

func (r *Router) cmdSummarize(ctx context.Context, msg Message, group *models.Group) []Reply {
	if !group.Settings.AIEnabled || !group.Settings.SummarizationEnabled {
		return []Reply{textReply(msg.Chat.ID, "Summaries are disabled in this group.")}
	}
	file, reply := r.targetFile(ctx, msg, true)
	if file == nil {
		return reply
	}
	text, reply2 := r.extract(ctx, msg.Chat.ID, file)
	if text == "" {
		return reply2
	}
	out, err := r.gateway.Summarize(ctx, text)
	if err != nil {
		return []Reply{aiFailureReply(msg.Chat.ID, ai.KindSummarize, err)}
	}
	r.recordAIUse(ctx, msg, ai.KindSummarize, text)
	return []Reply{textReply(msg.Chat.ID, out)}
}

func (r *Router) cmdExplain(ctx context.Context, msg Message, group *models.Group, question string) []Reply {
	if !group.Settings.AIEnabled || !group.Settings.ExplanationEnabled {
		return []Reply{textReply(msg.Chat.ID, "Explanations are disabled in this group.")}
	}
	var text string
	if msg.ReplyToMessageID != 0 {
		file, reply := r.targetFile(ctx, msg, false)
		if file == nil {
			return reply
		}
		var reply2 []Reply
		text, reply2 = r.extract(ctx, msg.Chat.ID, file)
		if text == "" {
			return reply2
		}
	}
	if text == "" && question == "" {
		return []Reply{textReply(msg.Chat.ID,
			"Reply to a file with /explain, or ask a question: /explain <question>")}
	}
	out, err := r.gateway.Explain(ctx, text, question)
	if err != nil {
		return []Reply{aiFailureReply(msg.Chat.ID, ai.KindExplain, err)}
	}
	r.recordAIUse(ctx, msg, ai.KindExplain, question+text)
	return []Reply{textReply(msg.Chat.ID, out)}
}

func (r *Router) cmdQuiz(ctx context.Context, msg Message, group *models.Group, args string) []Reply {
	if !group.Settings.AIEnabled || !group.Settings.QuizEnabled {
		return []Reply{textReply(msg.Chat.ID, "Quizzes are disabled in this group.")}
	}
	count := 5
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil {
			return []Reply{textReply(msg.Chat.ID, "Usage: /quiz [number of questions]")}
		}
		count = n
	}
	file, reply := r.targetFile(ctx, msg, true)
	if file == nil {
		return reply
	}
	text, reply2 := r.extract(ctx, msg.Chat.ID, file)
	if text == "" {
		return reply2
	}
	out, err := r.gateway.Quiz(ctx, text, count)
	if err != nil {
		return []Reply{aiFailureReply(msg.Chat.ID, ai.KindQuiz, err)}
	}
	r.recordAIUse(ctx, msg, ai.KindQuiz, text)
	return []Reply{textReply(msg.Chat.ID, out)}
}

// targetFile resolves which file a command refers to. A reply to an indexed
// upload wins; otherwise, when fallbackLatest is set, the group's newest
// file is used. A nil file comes with the reply to send instead.
func (r *Router) targetFile(ctx context.Context, msg Message, fallbackLatest bool) (*models.FileRecord, []Reply) {
	if msg.ReplyToMessageID != 0 {
		file, err := r.files.GetByMessage(ctx, msg.Chat.ID, msg.ReplyToMessageID)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, catalog.ErrFileNotFound) {
			log.Printf("resolve file by message: %v", err)
			return nil, []Reply{textReply(msg.Chat.ID, msgInternalError)}
		}
		return nil, []Reply{textReply(msg.Chat.ID, "That message is not an indexed file.")}
	}
	if fallbackLatest {
		file, err := r.files.Latest(ctx, msg.Chat.ID)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, catalog.ErrFileNotFound) {
			log.Printf("resolve latest file: %v", err)
			return nil, []Reply{textReply(msg.Chat.ID, msgInternalError)}
		}
	}
	return nil, []Reply{textReply(msg.Chat.ID, "Reply to an indexed file to use this command.")}
}

func (r *Router) extract(ctx context.Context, chatID int64, file *models.FileRecord) (string, []Reply) {
	text, err := r.extractor.ExtractText(ctx, file.RemoteFileID, file.MimeType)
	if err != nil {
		log.Printf("extract text from file %d: %v", file.ID, err)
		return "", []Reply{textReply(chatID, "I could not read that file's content.")}
	}
	if strings.TrimSpace(text) == "" {
		return "", []Reply{textReply(chatID, "There is no text to work with in that file.")}
	}
	return text, nil
}

func (r *Router) recordAIUse(ctx context.Context, msg Message, kind ai.PromptKind, text string) {
	r.recordAIUseBy(ctx, msg.From.ID, msg.Chat.ID, kind, text)
}

// handlePendingReply consumes a pending tag prompt when the message replies
// to one. The second return value reports whether the reply was claimed.
func (r *Router) handlePendingReply(ctx context.Context, msg Message) ([]Reply, bool) {
	input, err := r.pending.Take(ctx, msg.From.ID, msg.Chat.ID, msg.ReplyToMessageID)
	if err != nil {
		if !errors.Is(err, session.ErrNoPendingInput) {
			log.Printf("resolve pending input: %v", err)
		}
		return nil, false
	}
	switch input.Kind {
	case models.PendingTags:
		fileID, err := strconv.ParseInt(input.Payload, 10, 64)
		if err != nil {
			log.Printf("pending tags payload %q: %v", input.Payload, err)
			return []Reply{textReply(msg.Chat.ID, msgInternalError)}, true
		}
		return r.applyUserTags(ctx, msg, fileID), true
	default:
		return nil, false
	}
}

func (r *Router) applyUserTags(ctx context.Context, msg Message, fileID int64) []Reply {
	tags := catalog.NormalizeTags(strings.FieldsFunc(msg.Text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	}))
	if len(tags) == 0 {
		return []Reply{textReply(msg.Chat.ID,
			"No valid tags in that message. Tags use letters, digits, '-' and '_'.")}
	}
	added, err := r.files.AddTags(ctx, fileID, tags)
	if err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			return []Reply{textReply(msg.Chat.ID, "That file is no longer indexed.")}
		}
		log.Printf("add tags to file %d: %v", fileID, err)
		return []Reply{textReply(msg.Chat.ID, msgInternalError)}
	}
	if len(added) == 0 {
		return []Reply{textReply(msg.Chat.ID, "Those tags are already on the file.")}
	}
	return []Reply{textReply(msg.Chat.ID, "Added tags: "+strings.Join(added, ", "))}
}
