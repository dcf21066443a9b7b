// Package agentapi is a Go client for the agent REST surface.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/agents"
)

// ErrRequestFailed is returned for any non-2xx response. The body is not parsed.
var ErrRequestFailed = errors.New("agent api request failed")

type ChatRequest struct {
	Text    string `json:"text"`
	AgentID string `json:"agent_id"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type TalkResponse struct {
	UserText   string `json:"user_text"`
	AIResponse string `json:"ai_response"`
}

// Client calls a server rooted at BaseURL, e.g. http://localhost:8080/api/v1.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateAgent(ctx context.Context, req agents.CreateAgentRequest) (*agents.Agent, error) {
	var out agents.Agent
	if err := c.do(ctx, "create agent", http.MethodPost, "/agents/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]agents.Agent, error) {
	var out []agents.Agent
	if err := c.do(ctx, "fetch agents", http.MethodGet, "/agents/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	var out agents.Agent
	if err := c.do(ctx, "fetch agent", http.MethodGet, "/agents/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAgent(ctx context.Context, id string, req agents.UpdateAgentRequest) (*agents.Agent, error) {
	var out agents.Agent
	if err := c.do(ctx, "update agent", http.MethodPut, "/agents/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, "delete agent", http.MethodDelete, "/agents/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ChatHistory(ctx context.Context, agentID string) ([]agents.HistoryEntry, error) {
	var out []agents.HistoryEntry
	if err := c.do(ctx, "fetch chat history", http.MethodGet, "/chat/history/"+url.PathEscape(agentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var out ChatResponse
	if err := c.do(ctx, "chat", http.MethodPost, "/chat", req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Talk uploads a recorded utterance and returns its transcript and the reply.
func (c *Client) Talk(ctx context.Context, agentID, filename string, audio []byte) (*TalkResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if agentID != "" {
		if err := w.WriteField("agent_id", agentID); err != nil {
			return nil, errors.Wrap(err, "talk: write field")
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "talk: create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, errors.Wrap(err, "talk: write audio")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "talk: close multipart")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/talk", &body)
	if err != nil {
		return nil, errors.Wrap(err, "talk: build request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out TalkResponse
	if err := c.send(req, "talk", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: encode request", op)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to %s", op)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.Wrapf(ErrRequestFailed, "failed to %s: status %d", op, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}
