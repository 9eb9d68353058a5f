package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsChatAdmin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/service/chat_admin" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Webhook-Secret") != "s3cret" {
			t.Errorf("secret header missing")
		}
		var body map[string]int64
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]bool{"is_admin": body["user_id"] == 500})
	}))
	defer server.Close()

	client := NewClient(server.URL, "s3cret")
	isAdmin, err := client.IsChatAdmin(context.Background(), -1, 500)
	if err != nil {
		t.Fatalf("is chat admin: %v", err)
	}
	if !isAdmin {
		t.Fatalf("expected admin")
	}
	isAdmin, err = client.IsChatAdmin(context.Background(), -1, 100)
	if err != nil {
		t.Fatalf("is chat admin: %v", err)
	}
	if isAdmin {
		t.Fatalf("expected non-admin")
	}
}

func TestExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "file content"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "s3cret")
	text, err := client.ExtractText(context.Background(), "file-1", "application/pdf")
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if text != "file content" {
		t.Fatalf("text = %q", text)
	}
}

func TestAdapterErrorsSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "s3cret")
	if _, err := client.ExtractText(context.Background(), "file-1", "application/pdf"); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient("", "s3cret")
	if _, err := client.IsChatAdmin(context.Background(), -1, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
