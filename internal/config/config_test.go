package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, "gpt-oss-120b", cfg.CerebrasModelID)
	assert.Equal(t, 30*time.Second, cfg.CaptureMax)
	assert.Equal(t, 5*time.Second, cfg.SOSCountdown)
	assert.Equal(t, "canned", cfg.ReplyProvider)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AURA_SOS_COUNTDOWN", "10s")
	t.Setenv("AURA_CAPTURE_MODE", "audio")
	t.Setenv("AURA_DEFAULT_LANGUAGE", "vi")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.SOSCountdown)
	assert.Equal(t, "audio", cfg.CaptureMode)
	assert.Equal(t, "vi", cfg.DefaultLanguage)
}

func TestLoad_RejectsUnknownEnums(t *testing.T) {
	cases := map[string]string{
		"AURA_STORE":            "postgres",
		"AURA_REPLY_PROVIDER":   "magic",
		"AURA_CAPTURE_MODE":     "video",
		"AURA_AUDIO_CODEC":      "mp3",
		"AURA_DEFAULT_LANGUAGE": "fr",
		"AURA_SOS_COUNTDOWN":    "200ms",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestEnabledFlags(t *testing.T) {
	cfg := Config{TwilioAccountSID: "AC1", TwilioAuthToken: "tok", TwilioFrom: "+1", EmergencyContact: "+84"}
	assert.True(t, cfg.TwilioEnabled())
	cfg.EmergencyContact = ""
	assert.False(t, cfg.TwilioEnabled())
	assert.False(t, Config{}.SupabaseEnabled())
}
