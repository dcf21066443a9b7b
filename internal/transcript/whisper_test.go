package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/aura-companion/internal/i18n"
)

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "vi", r.FormValue("language"))
		assert.Equal(t, openai.Whisper1, r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  xin chào  "}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = srv.URL + "/v1"
	text, err := NewWhisperWithConfig(cfg).Transcribe(context.Background(), []byte("RIFF"), "audio/wav", i18n.Vietnamese)
	require.NoError(t, err)
	assert.Equal(t, "xin chào", text)
}

func TestWhisper_EmptyAudio(t *testing.T) {
	text, err := NewWhisper("k").Transcribe(context.Background(), nil, "audio/wav", i18n.English)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".webm", extensionFor("audio/webm;codecs=opus"))
	assert.Equal(t, ".wav", extensionFor(""))
	assert.Equal(t, ".mp3", extensionFor("audio/mpeg"))
}
