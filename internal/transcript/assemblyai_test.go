package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/aura-companion/internal/i18n"
)

// fakeAssemblyAI emulates the streaming endpoint: it counts audio frames and
// answers ForceEndpoint and Terminate the way the real service does.
func fakeAssemblyAI(t *testing.T, frames *int, mu *sync.Mutex) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("Authorization"))
		assert.Equal(t, "16000", r.URL.Query().Get("sample_rate"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"type": "Begin", "id": "s1", "expires_at": time.Now().Unix()})
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				mu.Lock()
				*frames++
				n := *frames
				mu.Unlock()
				if n == 1 {
					_ = conn.WriteJSON(map[string]any{"type": "Turn", "turn_order": 0, "transcript": "hello"})
				}
				continue
			}
			switch {
			case strings.Contains(string(msg), "ForceEndpoint"):
				_ = conn.WriteJSON(map[string]any{"type": "Turn", "turn_order": 0, "transcript": "Hello there.", "end_of_turn": true, "turn_is_formatted": true})
				_ = conn.WriteJSON(map[string]any{"type": "Turn", "turn_order": 1, "transcript": "How are you?", "end_of_turn": true, "turn_is_formatted": true})
			case strings.Contains(string(msg), "Terminate"):
				_ = conn.WriteJSON(map[string]any{"type": "Termination", "audio_duration_seconds": 1.0})
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
}

func TestAssemblyAI_StreamAndFinish(t *testing.T) {
	var frames int
	var mu sync.Mutex
	srv := fakeAssemblyAI(t, &frames, &mu)
	defer srv.Close()

	partials := make(chan string, 8)
	a := NewAssemblyAI("key").WithEndpoint("ws" + strings.TrimPrefix(srv.URL, "http"))
	stream, err := a.Open(context.Background(), i18n.English, func(s string) { partials <- s })
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SendPCM16KLE(make([]byte, 320)))
	require.NoError(t, stream.SendPCM16KLE(make([]byte, 320)))
	select {
	case p := <-partials:
		assert.Equal(t, "hello", p)
	case <-time.After(time.Second):
		t.Fatal("no partial transcript")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := stream.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello there. How are you?", text)
	mu.Lock()
	assert.Equal(t, 2, frames)
	mu.Unlock()
}

func TestAssemblyAI_Supports(t *testing.T) {
	assert.True(t, NewAssemblyAI("key").Supports(i18n.English))
	assert.False(t, NewAssemblyAI("key").Supports(i18n.Vietnamese))
	assert.False(t, NewAssemblyAI("").Supports(i18n.English))
}

func TestAssemblyAI_OpenWithoutKey(t *testing.T) {
	_, err := NewAssemblyAI("").Open(context.Background(), i18n.English, nil)
	assert.Error(t, err)
}

func TestAssemblyAIStream_TurnsJoinInOrder(t *testing.T) {
	s := &AssemblyAIStream{turns: map[int]string{}}
	s.processMessage([]byte(`{"type":"Turn","turn_order":1,"transcript":"second"}`))
	s.processMessage([]byte(`{"type":"Turn","turn_order":0,"transcript":"first"}`))
	s.processMessage([]byte(`{"type":"Turn","turn_order":0,"transcript":"First,"}`))
	assert.Equal(t, "First, second", s.Text())
}
