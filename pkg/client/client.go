// Package client is a Go client for the triage HTTP API. It submits requests
// and decodes the server-sent event stream into typed callbacks.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event mirrors one frame of the server's event stream.
type Event struct {
	Type        string `json:"type"`
	Phase       string `json:"phase,omitempty"`
	Description string `json:"description,omitempty"`
	Question    string `json:"question,omitempty"`
	Text        string `json:"text,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Session is the closing frame of a request stream. A Status of
// "awaiting_input" means the server expects a follow-up request carrying
// SessionID and the user's reply.
type Session struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Route     string `json:"route,omitempty"`
}

// Client talks to a triage server.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the given base URL (e.g. "http://localhost:8420").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 0},
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func (c *Client) WithHTTPClient(httpc *http.Client) *Client {
	c.httpc = httpc
	return c
}

type requestBody struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

// Send submits one user turn and invokes onEvent for every streamed event.
// sessionID resumes a suspended conversation when non-empty. The returned
// Session describes where the conversation ended up.
func (c *Client) Send(ctx context.Context, input, sessionID string, onEvent func(Event)) (*Session, error) {
	body, err := json.Marshal(requestBody{Input: input, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/requests", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := bufio.NewReader(resp.Body).ReadString('\n')
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(msg))
	}

	var (
		session   *Session
		eventName string
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if eventName == "session" {
				s := &Session{}
				if err := json.Unmarshal([]byte(data), s); err != nil {
					return nil, fmt.Errorf("decode session frame: %w", err)
				}
				session = s
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return nil, fmt.Errorf("decode event frame: %w", err)
			}
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("stream ended without a session frame")
	}
	return session, nil
}

// Healthy reports whether the server responds on /healthz.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	httpc := c.httpc
	if httpc.Timeout == 0 {
		httpc = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
