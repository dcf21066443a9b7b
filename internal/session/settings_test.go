package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/aura-companion/internal/i18n"
)

func TestVoiceSpeed_Rate(t *testing.T) {
	assert.Equal(t, 0.75, SpeedSlow.Rate())
	assert.Equal(t, 1.0, SpeedNormal.Rate())
	assert.Equal(t, 1.3, SpeedFast.Rate())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(i18n.Vietnamese)
	require.NoError(t, s.Validate())
	assert.Equal(t, "Bạn", s.UserName)
	assert.Equal(t, SpeedNormal, s.VoiceSpeed)
	assert.Equal(t, FontLarge, s.FontSize)

	fallback := DefaultSettings("fr")
	assert.Equal(t, i18n.English, fallback.Language)
	assert.Equal(t, "Friend", fallback.UserName)
}

func TestSettings_Validate(t *testing.T) {
	base := DefaultSettings(i18n.English)
	cases := map[string]func(*Settings){
		"blank name": func(s *Settings) { s.UserName = "  " },
		"speed":      func(s *Settings) { s.VoiceSpeed = "turbo" },
		"language":   func(s *Settings) { s.Language = "de" },
		"font":       func(s *Settings) { s.FontSize = "tiny" },
		"theme":      func(s *Settings) { s.Theme = "sepia" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := base
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSettings_SpeakOptions(t *testing.T) {
	s := DefaultSettings(i18n.Vietnamese)
	s.VoiceSpeed = SpeedSlow
	assert.Equal(t, SpeakOptions{Rate: 0.75, Lang: i18n.Vietnamese}, s.SpeakOptions())
}
