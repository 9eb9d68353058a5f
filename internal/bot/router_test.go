package bot

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"collalearn/internal/ai"
	"collalearn/internal/ailog"
	"collalearn/internal/auth"
	"collalearn/internal/catalog"
	"collalearn/internal/config"
	"collalearn/internal/search"
	"collalearn/internal/session"
	"collalearn/internal/settings"
	"collalearn/internal/storage"
)

type fakeLookup struct {
	admins map[int64]bool
}

func (f *fakeLookup) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return f.admins[userID], nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, fileID, mimeType string) (string, error) {
	return f.text, f.err
}

type testEnv struct {
	router *Router
	db     *sql.DB
	files  *catalog.Store
	groups *settings.Store
	lookup *fakeLookup
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	aiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "cmpl-1", "object": "chat.completion", "model": "sonar",
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop",
					"message": map[string]any{"role": "assistant", "content": "AI RESPONSE"}},
			},
		})
	}))
	t.Cleanup(aiServer.Close)

	cfg := &config.Config{
		WebhookSecret:  "secret",
		GlobalAdminIDs: []int64{999},
		Limits: config.LimitsConfig{
			MaxFileSizeMB:       20,
			MaxSearchResults:    10,
			MaxSearchResultsCap: 50,
			SessionTTL:          time.Hour,
			PendingInputTTL:     15 * time.Minute,
			FilesPerResultsPage: 5,
		},
	}
	lookup := &fakeLookup{admins: map[int64]bool{500: true}}
	checker := auth.NewChecker(lookup, nil, time.Minute, cfg.GlobalAdminIDs)
	groups := settings.NewStore(db)
	files := catalog.NewStore(db)
	gateway := ai.NewGateway(ai.Config{BaseURL: aiServer.URL, APIKey: "k", Timeout: 5 * time.Second})
	router := NewRouter(
		cfg, groups, files,
		search.NewEngine(db),
		session.NewManager(db, cfg.Limits.SessionTTL),
		session.NewPendingStore(db, cfg.Limits.PendingInputTTL),
		gateway,
		ailog.NewStore(db),
		checker,
		&fakeExtractor{text: "lecture content about physics"},
	)
	return &testEnv{router: router, db: db, files: files, groups: groups, lookup: lookup}
}

func docMessage(msgID int64, name, mime string, size int64, caption string) Message {
	return Message{
		MessageID: msgID,
		From:      Sender{ID: 100, Username: "alice", FirstName: "Alice"},
		Chat:      Chat{ID: -1, Type: "group", Title: "Study Room"},
		Caption:   caption,
		Document: &Document{
			FileID:       "remote-1",
			UniqueFileID: "unique-1",
			FileName:     name,
			MimeType:     mime,
			SizeBytes:    size,
		},
	}
}

func textMessage(text string) Message {
	return Message{
		MessageID: 1,
		From:      Sender{ID: 100, Username: "alice"},
		Chat:      Chat{ID: -1, Type: "group", Title: "Study Room"},
		Text:      text,
	}
}

func handle(t *testing.T, env *testEnv, u Update) []Reply {
	t.Helper()
	replies, err := env.router.Handle(context.Background(), u)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return replies
}

func TestUploadIndexesFileWithCaptionHashtags(t *testing.T) {
	env := newTestEnv(t)
	msg := docMessage(10, "notes.pdf", "application/pdf", 1024, "week 2 #Physics #mechanics")
	replies := handle(t, env, Update{Message: &msg})
	if len(replies) != 1 {
		t.Fatalf("got %d replies", len(replies))
	}
	file, err := env.files.GetByMessage(context.Background(), -1, 10)
	if err != nil {
		t.Fatalf("file not indexed: %v", err)
	}
	if len(file.Tags) != 2 || file.Tags[0] != "mechanics" {
		t.Fatalf("tags = %v", file.Tags)
	}
	g, err := env.groups.GetGroup(context.Background(), -1)
	if err != nil {
		t.Fatalf("group not registered: %v", err)
	}
	if g.Stats.TotalFiles != 1 {
		t.Fatalf("file counter = %d", g.Stats.TotalFiles)
	}
	var hasAddTags bool
	for _, row := range replies[0].Buttons {
		for _, b := range row {
			if strings.HasPrefix(b.Data, "add_tags:") {
				hasAddTags = true
			}
		}
	}
	if !hasAddTags {
		t.Fatalf("reply lacks tag buttons: %+v", replies[0].Buttons)
	}
}

func TestUploadRejectsUnsupportedMime(t *testing.T) {
	env := newTestEnv(t)
	msg := docMessage(10, "malware.exe", "application/x-msdownload", 1024, "")
	replies := handle(t, env, Update{Message: &msg})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "not supported") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	if _, err := env.files.GetByMessage(context.Background(), -1, 10); err == nil {
		t.Fatalf("unsupported file was indexed")
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t)
	msg := docMessage(10, "big.pdf", "application/pdf", 21*1024*1024, "")
	replies := handle(t, env, Update{Message: &msg})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "too large") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestAdminOnlyIndexingBlocksMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// Register the group, then restrict indexing to admins.
	handle(t, env, Update{Message: &Message{MessageID: 1, From: Sender{ID: 100}, Chat: Chat{ID: -1, Title: "Room"}, Text: "hello"}})
	g, err := env.groups.GetGroup(ctx, -1)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	s := g.Settings
	s.AdminOnlyIndexing = true
	if err := env.groups.UpdateSettings(ctx, -1, s); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	msg := docMessage(10, "notes.pdf", "application/pdf", 1024, "")
	replies := handle(t, env, Update{Message: &msg})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "admins") {
		t.Fatalf("member upload not rejected: %+v", replies)
	}

	msg = docMessage(11, "notes.pdf", "application/pdf", 1024, "")
	msg.From = Sender{ID: 500, Username: "admin"}
	replies = handle(t, env, Update{Message: &msg})
	if _, err := env.files.GetByMessage(ctx, -1, 11); err != nil {
		t.Fatalf("admin upload failed: %v (replies %+v)", err, replies)
	}
}

func TestBlockedUserIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	handle(t, env, Update{Message: &Message{MessageID: 1, From: Sender{ID: 100}, Chat: Chat{ID: -1, Title: "Room"}, Text: "hi"}})
	if err := env.groups.BlockUser(ctx, -1, 100); err != nil {
		t.Fatalf("block: %v", err)
	}
	replies := handle(t, env, Update{Message: &Message{MessageID: 2, From: Sender{ID: 100}, Chat: Chat{ID: -1, Title: "Room"}, Text: "/help"}})
	if len(replies) != 0 {
		t.Fatalf("blocked user got replies: %+v", replies)
	}
}

func TestSearchCommandBuildsSessionButtons(t *testing.T) {
	env := newTestEnv(t)
	msg := docMessage(10, "physics.pdf", "application/pdf", 1024, "")
	handle(t, env, Update{Message: &msg})

	cmd := textMessage("/search physics")
	replies := handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 {
		t.Fatalf("got %d replies", len(replies))
	}
	if len(replies[0].Buttons) == 0 {
		t.Fatalf("no result buttons: %+v", replies[0])
	}
	data := replies[0].Buttons[0][0].Data
	if !strings.HasPrefix(data, "file:") || !strings.HasSuffix(data, ":0") {
		t.Fatalf("unexpected button data %q", data)
	}
}

func TestSearchCommandUsageOnEmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	cmd := textMessage("/search")
	replies := handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Usage") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestFileSelectCallbackRejectsOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	msg := docMessage(10, "physics.pdf", "application/pdf", 1024, "")
	handle(t, env, Update{Message: &msg})
	cmd := textMessage("/search physics")
	replies := handle(t, env, Update{Message: &cmd})
	data := replies[0].Buttons[0][0].Data

	cb := Callback{ID: "cb1", From: Sender{ID: 200, Username: "bob"}, ChatID: -1, MessageID: 2, Data: data}
	replies = handle(t, env, Update{Callback: &cb})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "another user") {
		t.Fatalf("unexpected replies: %+v", replies)
	}

	cb.From = Sender{ID: 100, Username: "alice"}
	replies = handle(t, env, Update{Callback: &cb})
	if len(replies) != 1 || replies[0].SendFileID == "" {
		t.Fatalf("owner could not open result: %+v", replies)
	}
}

func TestPendingTagReplyFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := docMessage(10, "notes.pdf", "application/pdf", 1024, "")
	handle(t, env, Update{Message: &msg})
	file, err := env.files.GetByMessage(ctx, -1, 10)
	if err != nil {
		t.Fatalf("file missing: %v", err)
	}

	cb := Callback{ID: "cb1", From: Sender{ID: 100}, ChatID: -1, MessageID: 42, Data: "add_tags:" + strconv.FormatInt(file.ID, 10)}
	replies := handle(t, env, Update{Callback: &cb})
	if len(replies) != 1 || !replies[0].ExpectReply {
		t.Fatalf("expected a reply prompt: %+v", replies)
	}

	reply := Message{
		MessageID:        43,
		From:             Sender{ID: 100},
		Chat:             Chat{ID: -1, Title: "Room"},
		Text:             "Physics, optics waves",
		ReplyToMessageID: 42,
	}
	replies = handle(t, env, Update{Message: &reply})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Added tags") {
		t.Fatalf("tags not applied: %+v", replies)
	}
	got, err := env.files.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if len(got.Tags) != 3 {
		t.Fatalf("tags = %v", got.Tags)
	}

	// The pending input was consumed; a second reply is not claimed.
	reply.MessageID = 44
	replies = handle(t, env, Update{Message: &reply})
	if len(replies) != 0 {
		t.Fatalf("second reply was claimed: %+v", replies)
	}
}

func TestSummaryCommandRepliesWithAIText(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := docMessage(10, "notes.pdf", "application/pdf", 1024, "")
	handle(t, env, Update{Message: &msg})

	cmd := textMessage("/summary")
	cmd.ReplyToMessageID = 10
	replies := handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 || replies[0].Text != "AI RESPONSE" {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	g, _ := env.groups.GetGroup(ctx, -1)
	if g.Stats.TotalAIRequests != 1 {
		t.Fatalf("ai counter = %d", g.Stats.TotalAIRequests)
	}
}

func TestSummaryDisabledByGroupSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := docMessage(10, "notes.pdf", "application/pdf", 1024, "")
	handle(t, env, Update{Message: &msg})
	g, _ := env.groups.GetGroup(ctx, -1)
	s := g.Settings
	s.SummarizationEnabled = false
	if err := env.groups.UpdateSettings(ctx, -1, s); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	cmd := textMessage("/summary")
	cmd.ReplyToMessageID = 10
	replies := handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "disabled") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestAdminCommandRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	cmd := textMessage("/admin")
	replies := handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 || len(replies[0].Buttons) != 0 {
		t.Fatalf("member saw the admin panel: %+v", replies)
	}

	cmd.From = Sender{ID: 500, Username: "admin"}
	replies = handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 || len(replies[0].Buttons) == 0 {
		t.Fatalf("admin did not get the panel: %+v", replies)
	}
}

func TestGlobalAdminPassesGroupAdminCheck(t *testing.T) {
	env := newTestEnv(t)
	cmd := textMessage("/admin")
	cmd.From = Sender{ID: 999, Username: "operator"}
	replies := handle(t, env, Update{Message: &cmd})
	if len(replies) != 1 || len(replies[0].Buttons) == 0 {
		t.Fatalf("global admin denied: %+v", replies)
	}
}

