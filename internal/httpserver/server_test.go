package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/aura-companion/internal/agentapi"
	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/config"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/infra/storage"
	"github.com/chadiek/aura-companion/internal/llm"
	"github.com/chadiek/aura-companion/internal/metrics"
	"github.com/chadiek/aura-companion/internal/realtime"
	"github.com/chadiek/aura-companion/internal/session"
)

func testConfig() config.Config {
	return config.Config{
		DefaultLanguage: "en",
		ReplyProvider:   "canned",
		CaptureMode:     "transcript",
		CaptureMax:      30 * time.Second,
		SOSCountdown:    5 * time.Second,
		AudioCodec:      "pcm",
	}
}

func testDeps() Deps {
	return Deps{
		Config: testConfig(),
		Agents: agents.NewService(storage.NewMemoryStore()),
		Replies: func(*agents.Agent) session.Replier {
			return &llm.CannedReplier{Pick: func(int) int { return 0 }}
		},
		Metrics: metrics.New(""),
	}
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(deps))
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Healthz(t *testing.T) {
	e := New(testDeps())
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(echo.HeaderXRequestID))
}

func TestServer_Metrics(t *testing.T) {
	deps := testDeps()
	deps.Metrics.RecordError("speech")
	w := httptest.NewRecorder()
	New(deps).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `aura_errors_total{component="speech"} 1`)
}

func TestAuthOK(t *testing.T) {
	assert.True(t, authOK(nil, ""), "empty expected password accepts")

	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	assert.True(t, authOK(r, "secret"))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	assert.True(t, authOK(r2, "tok"))

	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer abc")
	assert.True(t, authOK(r3, "abc"))

	r4 := httptest.NewRequest(http.MethodGet, "/", nil)
	r4.Header.Set("Authorization", "bearer abc")
	assert.True(t, authOK(r4, "abc"), "lowercase bearer prefix")
}

func TestAuthOK_NegativeCases(t *testing.T) {
	assert.False(t, authOK(nil, "secret"))
	assert.False(t, authOK(httptest.NewRequest(http.MethodGet, "/?password=wrong", nil), "secret"))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	assert.False(t, authOK(r2, "secret"))

	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	assert.False(t, authOK(r3, "secret"))
}

func TestAgents_CRUDThroughClient(t *testing.T) {
	srv := newTestServer(t, testDeps())
	c := agentapi.New(srv.URL + "/api/v1")
	ctx := context.Background()

	created, err := c.CreateAgent(ctx, agents.CreateAgentRequest{Name: " Bà Lan ", Language: i18n.Vietnamese})
	require.NoError(t, err)
	assert.Equal(t, "Bà Lan", created.Name)
	assert.NotEmpty(t, created.ID)

	list, err := c.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	name := "Lan"
	updated, err := c.UpdateAgent(ctx, created.ID, agents.UpdateAgentRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Lan", updated.Name)
	assert.Equal(t, i18n.Vietnamese, updated.Language)

	got, err := c.GetAgent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lan", got.Name)

	require.NoError(t, c.DeleteAgent(ctx, created.ID))
	_, err = c.GetAgent(ctx, created.ID)
	assert.ErrorIs(t, err, agentapi.ErrRequestFailed)
}

func TestAgents_ErrorStatus(t *testing.T) {
	e := New(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/", strings.NewReader(`{"name":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history/unknown", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestChat_PersistsHistoryForAgent(t *testing.T) {
	deps := testDeps()
	srv := newTestServer(t, deps)
	c := agentapi.New(srv.URL + "/api/v1")
	ctx := context.Background()

	a, err := c.CreateAgent(ctx, agents.CreateAgentRequest{Name: "Minh"})
	require.NoError(t, err)

	reply, err := c.Chat(ctx, agentapi.ChatRequest{Text: "hello", AgentID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, i18n.T(i18n.English, i18n.KeyResponse1), reply)

	history, err := c.ChatHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.MessagesTotal.WithLabelValues("user")))
}

func TestChat_Validation(t *testing.T) {
	e := New(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"text":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No text provided")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"text":"hi","agent_id":"3f1c8a4e-1111-4c1e-9a8e-000000000000"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_WithoutAgentUsesDefaultAndSkipsHistory(t *testing.T) {
	deps := testDeps()
	srv := newTestServer(t, deps)
	c := agentapi.New(srv.URL + "/api/v1")
	ctx := context.Background()

	_, err := c.Chat(ctx, agentapi.ChatRequest{Text: "hello"})
	require.NoError(t, err)

	list, err := c.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, agents.DefaultAgent.Name, list[0].Name)

	history, err := c.ChatHistory(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

type failingReplier struct{}

func (failingReplier) Reply(context.Context, session.ReplyRequest) (string, error) {
	return "", assert.AnError
}

func TestChat_ReplyFailureIsBadGateway(t *testing.T) {
	deps := testDeps()
	deps.Replies = func(*agents.Agent) session.Replier { return failingReplier{} }
	e := New(deps)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.ErrorsTotal.WithLabelValues("reply")))
}

type fakeTranscriber struct {
	text string

	mu   sync.Mutex
	lang i18n.Language
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, contentType string, lang session.Language) (string, error) {
	f.mu.Lock()
	f.lang = lang
	f.mu.Unlock()
	return f.text, nil
}

func TestTalk(t *testing.T) {
	deps := testDeps()
	tr := &fakeTranscriber{text: " how are you "}
	deps.Transcriber = tr
	srv := newTestServer(t, deps)
	c := agentapi.New(srv.URL + "/api/v1")
	ctx := context.Background()

	a, err := c.CreateAgent(ctx, agents.CreateAgentRequest{Name: "Minh", Language: i18n.Vietnamese})
	require.NoError(t, err)

	out, err := c.Talk(ctx, a.ID, "clip.wav", []byte("RIFF"))
	require.NoError(t, err)
	assert.Equal(t, "how are you", out.UserText)
	assert.Equal(t, i18n.T(i18n.Vietnamese, i18n.KeyResponse1), out.AIResponse)
	tr.mu.Lock()
	assert.Equal(t, i18n.Vietnamese, tr.lang)
	tr.mu.Unlock()

	history, err := c.ChatHistory(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTalk_Failures(t *testing.T) {
	e := New(testDeps())
	w := httptest.NewRecorder()
	e.ServeHTTP(w, talkRequest(t))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	deps := testDeps()
	deps.Transcriber = &fakeTranscriber{text: "  "}
	w = httptest.NewRecorder()
	New(deps).ServeHTTP(w, talkRequest(t))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Could not understand audio")
}

func talkRequest(t *testing.T) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "clip.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFF"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/talk", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return req
}

func signTwilio(token, fullURL string, form url.Values) string {
	data := fullURL
	for _, k := range []string{"CallSid", "CallStatus"} {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioStatus(t *testing.T) {
	deps := testDeps()
	deps.Config.TwilioAuthToken = "tok"
	deps.Config.PublicBaseURL = "https://aura.example"
	e := New(deps)
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"no-answer"}}

	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/twilio/escalation-status", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		if sig != "" {
			req.Header.Set("X-Twilio-Signature", sig)
		}
		return req
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, newReq(""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, newReq(signTwilio("tok", "https://aura.example/twilio/escalation-status", form)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.NotificationsTotal.WithLabelValues("call_status", "error")))
}

// wsClient reads JSON frames from the conversation socket.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *httptest.Server, query string) (*wsClient, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, resp, err
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}, resp, nil
}

func (c *wsClient) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *wsClient) next() realtime.ServerMessage {
	c.t.Helper()
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		mt, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		if mt != websocket.TextMessage {
			continue
		}
		var msg realtime.ServerMessage
		require.NoError(c.t, json.Unmarshal(data, &msg))
		return msg
	}
}

// until reads frames until match returns true and returns everything read.
func (c *wsClient) until(match func(realtime.ServerMessage) bool) []realtime.ServerMessage {
	c.t.Helper()
	var seen []realtime.ServerMessage
	for {
		msg := c.next()
		seen = append(seen, msg)
		if match(msg) {
			return seen
		}
	}
}

func TestWS_RequiresPassword(t *testing.T) {
	deps := testDeps()
	deps.Config.AuthPassword = "secret"
	srv := newTestServer(t, deps)

	_, resp, err := dialWS(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c, _, err := dialWS(t, srv, "?password=secret")
	require.NoError(t, err)
	c.send(realtime.ClientMessage{Type: realtime.TypeHello})
	assert.Equal(t, realtime.TypeReady, c.next().Type)
}

func TestWS_FirstFrameMustBeHello(t *testing.T) {
	srv := newTestServer(t, testDeps())
	c, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	c.send(realtime.ClientMessage{Type: realtime.TypeText, Text: "hi"})
	msg := c.next()
	assert.Equal(t, realtime.TypeError, msg.Type)
	assert.Contains(t, msg.Error, "hello")
}

func TestWS_TextTurn(t *testing.T) {
	deps := testDeps()
	srv := newTestServer(t, deps)
	a, err := deps.Agents.Create(context.Background(), agents.CreateAgentRequest{Name: "Minh"})
	require.NoError(t, err)

	c, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	c.send(realtime.ClientMessage{Type: realtime.TypeHello, AgentID: a.ID})

	ready := c.next()
	require.Equal(t, realtime.TypeReady, ready.Type)
	require.Len(t, ready.Messages, 1)
	assert.Equal(t, i18n.T(i18n.English, i18n.KeyWelcome), ready.Messages[0].Text)
	require.NotNil(t, ready.Speech)
	assert.False(t, *ready.Speech)
	notice := c.next()
	assert.Equal(t, realtime.TypeNotice, notice.Type)
	assert.Equal(t, string(i18n.KeySpeechUnsupported), notice.Key)

	c.send(realtime.ClientMessage{Type: realtime.TypeText, Text: "good morning"})
	var user, assistant *session.Message
	var states []string
	c.until(func(m realtime.ServerMessage) bool {
		switch m.Type {
		case realtime.TypeState:
			states = append(states, m.State)
		case realtime.TypeMessage:
			if m.Message.Sender == session.SenderUser {
				user = m.Message
			} else {
				assistant = m.Message
			}
		}
		return m.Type == realtime.TypeState && m.State == string(session.StateIdle)
	})
	require.NotNil(t, user)
	require.NotNil(t, assistant)
	assert.Equal(t, "good morning", user.Text)
	assert.Equal(t, i18n.T(i18n.English, i18n.KeyResponse1), assistant.Text)
	assert.Equal(t, []string{"thinking", "speaking", "idle"}, states)

	require.Eventually(t, func() bool {
		h, err := deps.Agents.History(context.Background(), a.ID)
		return err == nil && len(h) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWS_EscalationCancel(t *testing.T) {
	srv := newTestServer(t, testDeps())
	c, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	c.send(realtime.ClientMessage{Type: realtime.TypeHello})
	require.Equal(t, realtime.TypeReady, c.next().Type)

	c.send(realtime.ClientMessage{Type: realtime.TypeSOSConfirm})
	c.until(func(m realtime.ServerMessage) bool { return m.Type == realtime.TypeError })

	c.send(realtime.ClientMessage{Type: realtime.TypeSOSRequest})
	c.until(func(m realtime.ServerMessage) bool { return m.Type == realtime.TypeSOS && m.State == "confirming" })

	c.send(realtime.ClientMessage{Type: realtime.TypeSOSConfirm})
	seen := c.until(func(m realtime.ServerMessage) bool {
		return m.Type == realtime.TypeSOS && m.State == "counting_down" && m.Remaining != nil && *m.Remaining == 5
	})
	var calling bool
	for _, m := range seen {
		if m.Type == realtime.TypeNotice && m.Key == string(i18n.KeySOSCallingMessage) {
			calling = true
		}
	}
	assert.True(t, calling)

	c.send(realtime.ClientMessage{Type: realtime.TypeSOSCancel})
	seen = c.until(func(m realtime.ServerMessage) bool { return m.Type == realtime.TypeSOS && m.State == "idle" })
	assert.Equal(t, "cancelled", seen[len(seen)-2].State)
	for _, m := range seen {
		assert.NotEqual(t, realtime.TypeMessage, m.Type, "cancel appends nothing")
	}
}

func TestWS_MicDeniedNotice(t *testing.T) {
	srv := newTestServer(t, testDeps())
	c, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	c.send(realtime.ClientMessage{Type: realtime.TypeHello})
	require.Equal(t, realtime.TypeReady, c.next().Type)

	c.send(realtime.ClientMessage{Type: realtime.TypeMicDenied})
	msg := c.until(func(m realtime.ServerMessage) bool { return m.Type == realtime.TypeNotice && m.Key == string(i18n.KeyMicDenied) })
	assert.NotEmpty(t, msg[len(msg)-1].Text)

	c.send(realtime.ClientMessage{Type: realtime.TypeVoiceStart})
	c.until(func(m realtime.ServerMessage) bool { return m.Type == realtime.TypeError })
	c.until(func(m realtime.ServerMessage) bool { return m.Type == realtime.TypeNotice && m.Key == string(i18n.KeyMicDenied) })
}
