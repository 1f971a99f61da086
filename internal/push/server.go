package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nyordd/internal/agent"
)

// ServerClient syncs subscription state to the notification server's push
// endpoints. Failures here are surfaced to the manager, which treats them as
// non-fatal: the local subscription is already committed.
type ServerClient struct {
	base   string
	token  func() (string, error)
	client *http.Client
}

func NewServerClient(baseURL string, token func() (string, error)) *ServerClient {
	return &ServerClient{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *ServerClient) PushSubscribe(ctx context.Context, sub *agent.Subscription) error {
	return c.post(ctx, "/push/subscribe", sub)
}

func (c *ServerClient) PushUnsubscribe(ctx context.Context) error {
	return c.post(ctx, "/push/unsubscribe", nil)
}

// SendTest asks the server to deliver a test push to the caller's current
// subscription. Meant for manual end-to-end verification.
func (c *ServerClient) SendTest(ctx context.Context) error {
	return c.post(ctx, "/push/test", nil)
}

func (c *ServerClient) post(ctx context.Context, path string, body any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, payload)
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
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
