// Package api implements the REST client used for catch-up reconciliation.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"chatsyncd/internal/channel"
)

// Client talks to the chat server's sync endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client for the given base URL. The bearer token
// is attached to every request. If httpClient is nil, http.DefaultClient is
// used.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
	}
}

// get sends a GET request and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API %s returned status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return nil
}

// ConversationsSince fetches conversations changed since the cursor.
func (c *Client) ConversationsSince(ctx context.Context, since int64) ([]channel.WireConversation, error) {
	var resp struct {
		Conversations []channel.WireConversation `json:"conversations"`
	}
	endpoint := "/conversations/sync?since=" + strconv.FormatInt(since, 10)
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}
	return resp.Conversations, nil
}

// MessagesSince fetches messages changed since the cursor.
func (c *Client) MessagesSince(ctx context.Context, since int64) ([]channel.WireMessage, error) {
	var resp struct {
		Messages []channel.WireMessage `json:"messages"`
	}
	endpoint := "/messages/sync?since=" + strconv.FormatInt(since, 10)
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return resp.Messages, nil
}
