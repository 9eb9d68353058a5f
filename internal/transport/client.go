// Package transport is the HTTP client for the chat transport adapter. The
// adapter pushes updates to this service; this client covers the reverse
// direction: admin lookups and file text extraction.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotConfigured is returned when no adapter base URL is set.
var ErrNotConfigured = errors.New("transport adapter not configured")

// Client calls the transport adapter's service API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient builds a transport client. baseURL may be empty; every call then
// fails with ErrNotConfigured.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// IsChatAdmin asks the adapter whether the user administers the chat.
func (c *Client) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	var out struct {
		IsAdmin bool `json:"is_admin"`
	}
	err := c.post(ctx, "/service/chat_admin", map[string]int64{
		"chat_id": chatID,
		"user_id": userID,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.IsAdmin, nil
}

// ExtractText fetches the file from the platform and returns its plain text.
func (c *Client) ExtractText(ctx context.Context, fileID, mimeType string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.post(ctx, "/service/extract_text", map[string]string{
		"file_id":   fileID,
		"mime_type": mimeType,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call adapter %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("adapter %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode adapter response: %w", err)
	}
	return nil
}
