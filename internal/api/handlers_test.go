package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"collalearn/internal/ai"
	"collalearn/internal/ailog"
	"collalearn/internal/auth"
	"collalearn/internal/bot"
	"collalearn/internal/catalog"
	"collalearn/internal/config"
	"collalearn/internal/models"
	"collalearn/internal/search"
	"collalearn/internal/session"
	"collalearn/internal/settings"
	"collalearn/internal/storage"
)

type allowAllLookup struct{}

func (allowAllLookup) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return true, nil
}

type emptyExtractor struct{}

func (emptyExtractor) ExtractText(ctx context.Context, fileID, mimeType string) (string, error) {
	return "text", nil
}

func newTestServer(t *testing.T) (*gin.Engine, *settings.Store, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := storage.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	cfg := &config.Config{
		WebhookSecret:  "hook-secret",
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
	checker := auth.NewChecker(allowAllLookup{}, nil, time.Minute, cfg.GlobalAdminIDs)
	groups := settings.NewStore(db)
	files := catalog.NewStore(db)
	logs := ailog.NewStore(db)
	router := bot.NewRouter(
		cfg, groups, files,
		search.NewEngine(db),
		session.NewManager(db, cfg.Limits.SessionTTL),
		session.NewPendingStore(db, cfg.Limits.PendingInputTTL),
		ai.NewGateway(ai.Config{BaseURL: "http://127.0.0.1:0", APIKey: "k"}),
		logs, checker, emptyExtractor{},
	)
	handler := NewHandler(cfg, router, groups, files, logs, checker)
	engine := gin.New()
	handler.RegisterRoutes(engine)
	return engine, groups, db
}

func doRequest(engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	engine, _, _ := newTestServer(t)
	w := doRequest(engine, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpdatesRequireSecret(t *testing.T) {
	engine, _, _ := newTestServer(t)
	update := bot.Update{Message: &bot.Message{
		MessageID: 1,
		From:      bot.Sender{ID: 100},
		Chat:      bot.Chat{ID: -1, Title: "Room"},
		Text:      "/help",
	}}

	w := doRequest(engine, http.MethodPost, "/api/updates", update, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: status = %d", w.Code)
	}
	w = doRequest(engine, http.MethodPost, "/api/updates", update,
		map[string]string{auth.SecretHeader: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status = %d", w.Code)
	}
	w = doRequest(engine, http.MethodPost, "/api/updates", update,
		map[string]string{auth.SecretHeader: "hook-secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("valid secret: status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Replies []bot.Reply `json:"replies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Replies) != 1 {
		t.Fatalf("replies = %+v", resp.Replies)
	}
}

func TestUpdatesRejectMalformedBody(t *testing.T) {
	engine, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/updates", bytes.NewReader([]byte("{not json")))
	req.Header.Set(auth.SecretHeader, "hook-secret")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}

	// Valid JSON but neither message nor callback.
	w = doRequest(engine, http.MethodPost, "/api/updates", bot.Update{},
		map[string]string{auth.SecretHeader: "hook-secret"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty update: status = %d", w.Code)
	}
}

func adminHeaders(actor string) map[string]string {
	return map[string]string{
		auth.SecretHeader: "hook-secret",
		ActorHeader:       actor,
	}
}

func TestAdminRoutesRequireGlobalAdmin(t *testing.T) {
	engine, _, _ := newTestServer(t)

	w := doRequest(engine, http.MethodGet, "/api/admin/stats", nil,
		map[string]string{auth.SecretHeader: "hook-secret"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no actor: status = %d", w.Code)
	}
	w = doRequest(engine, http.MethodGet, "/api/admin/stats", nil, adminHeaders("100"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin actor: status = %d", w.Code)
	}
	w = doRequest(engine, http.MethodGet, "/api/admin/stats", nil, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("global admin: status = %d", w.Code)
	}
}

func TestGroupSettingsRoundTrip(t *testing.T) {
	engine, groups, _ := newTestServer(t)
	ctx := context.Background()
	if err := groups.UpsertGroup(ctx, -100, "Room"); err != nil {
		t.Fatalf("seed group: %v", err)
	}

	w := doRequest(engine, http.MethodGet, "/api/admin/groups/-100/settings", nil, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("get settings: status = %d", w.Code)
	}
	var s models.GroupSettings
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	s.AIEnabled = false
	s.MaxSearchResults = 25

	w = doRequest(engine, http.MethodPut, "/api/admin/groups/-100/settings", s, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: status = %d, body %s", w.Code, w.Body.String())
	}
	g, err := groups.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.Settings.AIEnabled || g.Settings.MaxSearchResults != 25 {
		t.Fatalf("settings not persisted: %+v", g.Settings)
	}
}

func TestPutSettingsValidatesMaxResults(t *testing.T) {
	engine, groups, _ := newTestServer(t)
	if err := groups.UpsertGroup(context.Background(), -100, "Room"); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	s := models.DefaultGroupSettings()
	s.MaxSearchResults = 500
	w := doRequest(engine, http.MethodPut, "/api/admin/groups/-100/settings", s, adminHeaders("999"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSettingsForUnknownGroup(t *testing.T) {
	engine, _, _ := newTestServer(t)
	w := doRequest(engine, http.MethodGet, "/api/admin/groups/-404/settings", nil, adminHeaders("999"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDeleteGroup(t *testing.T) {
	engine, groups, _ := newTestServer(t)
	if err := groups.UpsertGroup(context.Background(), -100, "Room"); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	w := doRequest(engine, http.MethodDelete, "/api/admin/groups/-100", nil, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	w = doRequest(engine, http.MethodDelete, "/api/admin/groups/-100", nil, adminHeaders("999"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d", w.Code)
	}
}

func TestRecentAILogs(t *testing.T) {
	engine, _, db := newTestServer(t)
	logs := ailog.NewStore(db)
	ctx := context.Background()
	if err := logs.Record(ctx, 100, -100, "summarize", "first prompt"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := logs.Record(ctx, 100, -100, "quiz", "second prompt"); err != nil {
		t.Fatalf("record: %v", err)
	}

	w := doRequest(engine, http.MethodGet, "/api/admin/groups/-100/ai_logs?limit=1", nil, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Logs []models.AILog `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(resp.Logs))
	}
	if resp.Logs[0].PromptKind != "quiz" {
		t.Fatalf("kind = %q, want newest entry first", resp.Logs[0].PromptKind)
	}
}

func TestRemoveFileTag(t *testing.T) {
	engine, _, db := newTestServer(t)
	files := catalog.NewStore(db)
	ctx := context.Background()
	file := &models.FileRecord{
		RemoteFileID: "f1", FileName: "notes.pdf", MimeType: "application/pdf",
		UploaderID: 100, GroupID: -100, MessageID: 1,
		Tags: []string{"physics", "week1"},
	}
	if err := files.SaveFile(ctx, file); err != nil {
		t.Fatalf("save file: %v", err)
	}

	path := "/api/admin/files/" + strconv.FormatInt(file.ID, 10) + "/tags/week1"
	w := doRequest(engine, http.MethodDelete, path, nil, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got, err := files.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "physics" {
		t.Fatalf("tags after removal = %v", got.Tags)
	}
}

func TestDeleteFile(t *testing.T) {
	engine, _, db := newTestServer(t)
	files := catalog.NewStore(db)
	ctx := context.Background()
	file := &models.FileRecord{
		RemoteFileID: "f1", FileName: "notes.pdf", MimeType: "application/pdf",
		UploaderID: 100, GroupID: -100, MessageID: 1,
	}
	if err := files.SaveFile(ctx, file); err != nil {
		t.Fatalf("save file: %v", err)
	}

	path := "/api/admin/files/" + strconv.FormatInt(file.ID, 10)
	w := doRequest(engine, http.MethodDelete, path, nil, adminHeaders("999"))
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	w = doRequest(engine, http.MethodDelete, path, nil, adminHeaders("999"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d", w.Code)
	}
	if _, err := files.GetByID(ctx, file.ID); !errors.Is(err, catalog.ErrFileNotFound) {
		t.Fatalf("lookup after delete: %v", err)
	}
}
