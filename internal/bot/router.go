// Package bot routes inbound chat updates to the file catalog, search,
// session, and AI services and shapes the outbound replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"collalearn/internal/ai"
	"collalearn/internal/ailog"
	"collalearn/internal/auth"
	"collalearn/internal/catalog"
	"collalearn/internal/config"
	"collalearn/internal/models"
	"collalearn/internal/search"
	"collalearn/internal/session"
	"collalearn/internal/settings"
)

// TextExtractor pulls plain text out of a transport hosted file. The
// implementation lives with the transport adapter; callers only see text.
type TextExtractor interface {
	ExtractText(ctx context.Context, fileID, mimeType string) (string, error)
}

// Generic user messages for failures the requester should not see the
// details of.
const (
	msgInternalError  = "Something went wrong. Please try again."
	msgNotAllowed     = "You are not allowed to do that."
	msgAIBusy         = "The AI service is busy right now. Please try again in a moment."
	msgAITimeout      = "The AI request took too long and was cancelled. Please try again."
	msgAIUnavailable  = "The AI service is currently unavailable."
	msgSessionExpired = "These results have expired. Run the search again."
)

// Router dispatches updates to handlers.
type Router struct {
	cfg       *config.Config
	groups    *settings.Store
	files     *catalog.Store
	engine    *search.Engine
	sessions  *session.Manager
	pending   *session.PendingStore
	gateway   *ai.Gateway
	logs      *ailog.Store
	checker   *auth.Checker
	extractor TextExtractor
}

// NewRouter wires the router from its collaborators.
func NewRouter(
	cfg *config.Config,
	groups *settings.Store,
	files *catalog.Store,
	engine *search.Engine,
	sessions *session.Manager,
	pending *session.PendingStore,
	gateway *ai.Gateway,
	logs *ailog.Store,
	checker *auth.Checker,
	extractor TextExtractor,
) *Router {
	return &Router{
		cfg:       cfg,
		groups:    groups,
		files:     files,
		engine:    engine,
		sessions:  sessions,
		pending:   pending,
		gateway:   gateway,
		logs:      logs,
		checker:   checker,
		extractor: extractor,
	}
}

// Handle processes one update and returns the replies to send. Failures the
// user should not see details of are logged and answered generically, so
// the returned error only signals a malformed update.
func (r *Router) Handle(ctx context.Context, update Update) ([]Reply, error) {
	switch {
	case update.Callback != nil:
		return r.handleCallback(ctx, *update.Callback), nil
	case update.Message != nil:
		return r.handleMessage(ctx, *update.Message), nil
	default:
		return nil, errors.New("update carries neither message nor callback")
	}
}

func (r *Router) handleMessage(ctx context.Context, msg Message) []Reply {
	if err := r.touch(ctx, msg); err != nil {
		log.Printf("record activity for chat %d: %v", msg.Chat.ID, err)
	}
	group, err := r.groups.GetGroup(ctx, msg.Chat.ID)
	if err != nil {
		log.Printf("load group %d: %v", msg.Chat.ID, err)
		return []Reply{textReply(msg.Chat.ID, msgInternalError)}
	}
	if group.Settings.IsBlocked(msg.From.ID) {
		return nil
	}

	if msg.Document != nil {
		return r.handleUpload(ctx, msg, group)
	}
	if msg.ReplyToMessageID != 0 && !strings.HasPrefix(msg.Text, "/") {
		if replies, handled := r.handlePendingReply(ctx, msg); handled {
			return replies
		}
	}
	if strings.HasPrefix(msg.Text, "/") {
		return r.handleCommand(ctx, msg, group)
	}
	return nil
}

// touch refreshes the group and user records for any activity.
func (r *Router) touch(ctx context.Context, msg Message) error {
	if err := r.groups.UpsertGroup(ctx, msg.Chat.ID, msg.Chat.Title); err != nil {
		return err
	}
	return r.groups.UpsertUser(ctx, models.User{
		UserID:    msg.From.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
	}, msg.Chat.ID)
}

// aiFailureReply maps a gateway error onto the message the requester sees.
// Credential and provider failures stay generic; the details go to the log.
func aiFailureReply(chatID int64, kind ai.PromptKind, err error) Reply {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return textReply(chatID, msgAIBusy)
	case errors.Is(err, ai.ErrTimeout):
		return textReply(chatID, msgAITimeout)
	case errors.Is(err, ai.ErrEmptyText):
		return textReply(chatID, "There is no text to work with in that file.")
	default:
		log.Printf("ai %s failed: %v", kind, err)
		return textReply(chatID, msgAIUnavailable)
	}
}

// commandArgs splits "/cmd rest of line" into the command name and its
// argument string. A "@botname" suffix on the command is dropped.
func commandArgs(text string) (string, string) {
	text = strings.TrimSpace(text)
	cmd, rest, _ := strings.Cut(text, " ")
	cmd = strings.TrimPrefix(cmd, "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

func fileLabel(f models.FileRecord) string {
	name := f.FileName
	if name == "" {
		name = fmt.Sprintf("file %d", f.ID)
	}
	return name
}
