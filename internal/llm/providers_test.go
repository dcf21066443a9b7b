package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestOpenAIClient_Generate(t *testing.T) {
	reqs := make(chan openai.ChatCompletionRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		reqs <- req
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"I'm here."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = srv.URL + "/v1"
	c := NewOpenAIClientWithConfig(cfg, "")
	reply, err := c.Generate(context.Background(), "sys", []Turn{{Role: RoleUser, Content: "earlier"}}, "now")
	require.NoError(t, err)
	assert.Equal(t, "I'm here.", reply)

	req := <-reqs
	assert.Equal(t, openai.GPT4oMini, req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "now", req.Messages[2].Content)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()
	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = srv.URL + "/v1"
	_, err := NewOpenAIClientWithConfig(cfg, "m").Generate(context.Background(), "sys", nil, "hi")
	assert.Error(t, err)
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Xin chào bạn."}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), "k", "", genai.HTTPOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	reply, err := c.Generate(context.Background(), "sys", []Turn{{Role: RoleAssistant, Content: "hi"}}, "chào")
	require.NoError(t, err)
	assert.Equal(t, "Xin chào bạn.", reply)
}
