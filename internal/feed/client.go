package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nyordd/internal/notif"
)

// Client is the REST side of the notification server.
type Client struct {
	base   string
	token  func() (string, error)
	client *http.Client
}

func NewClient(baseURL string, token func() (string, error)) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchNotifications pulls the full list, server order (newest first).
func (c *Client) FetchNotifications(ctx context.Context) ([]notif.Record, error) {
	var wire []wireNotification
	if err := c.do(ctx, http.MethodGet, "/api/notifications/", nil, &wire); err != nil {
		return nil, err
	}
	recs := make([]notif.Record, 0, len(wire))
	for _, w := range wire {
		recs = append(recs, w.record())
	}
	return recs, nil
}

func (c *Client) FetchStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.do(ctx, http.MethodGet, "/api/notifications/stats", nil, &st)
	return st, err
}

// MarkRead sends the read receipt for one notification.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	body := map[string]bool{"is_read": true}
	return c.do(ctx, http.MethodPut, "/api/notifications/"+id, body, nil)
}

// MarkAllRead sends the bulk read receipt.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/mark-all-read", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token()
		if err != nil {
			return fmt.Errorf("bearer token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
