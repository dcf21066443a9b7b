package session

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/i18n"
)

// Language re-exports the locale language so callers need one import.
type Language = i18n.Language

// VoiceSpeed is the user-facing speaking speed.
type VoiceSpeed string

const (
	SpeedSlow   VoiceSpeed = "slow"
	SpeedNormal VoiceSpeed = "normal"
	SpeedFast   VoiceSpeed = "fast"
)

// Rate maps the speed to a playback rate multiplier.
func (v VoiceSpeed) Rate() float64 {
	switch v {
	case SpeedSlow:
		return 0.75
	case SpeedFast:
		return 1.3
	default:
		return 1.0
	}
}

type FontSize string

const (
	FontNormal     FontSize = "normal"
	FontLarge      FontSize = "large"
	FontExtraLarge FontSize = "extra-large"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Settings is per-session configuration.
type Settings struct {
	UserName   string     `json:"userName"`
	VoiceSpeed VoiceSpeed `json:"voiceSpeed"`
	Language   Language   `json:"language"`
	FontSize   FontSize   `json:"fontSize"`
	Theme      Theme      `json:"theme"`
}

// DefaultSettings returns the settings a new session starts with.
func DefaultSettings(lang Language) Settings {
	if !lang.Valid() {
		lang = i18n.English
	}
	return Settings{
		UserName:   i18n.T(lang, i18n.KeyDefaultUserName),
		VoiceSpeed: SpeedNormal,
		Language:   lang,
		FontSize:   FontLarge,
		Theme:      ThemeLight,
	}
}

// Validate checks enum membership and a non-empty display name.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.UserName) == "" {
		return errors.New("userName must not be empty")
	}
	switch s.VoiceSpeed {
	case SpeedSlow, SpeedNormal, SpeedFast:
	default:
		return errors.Errorf("unknown voiceSpeed %q", s.VoiceSpeed)
	}
	if !s.Language.Valid() {
		return errors.Errorf("unknown language %q", s.Language)
	}
	switch s.FontSize {
	case FontNormal, FontLarge, FontExtraLarge:
	default:
		return errors.Errorf("unknown fontSize %q", s.FontSize)
	}
	switch s.Theme {
	case ThemeLight, ThemeDark:
	default:
		return errors.Errorf("unknown theme %q", s.Theme)
	}
	return nil
}

// SpeakOptions derives the speech options for these settings.
func (s Settings) SpeakOptions() SpeakOptions {
	return SpeakOptions{Rate: s.VoiceSpeed.Rate(), Lang: s.Language}
}
