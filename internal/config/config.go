package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// AuthPassword gates the realtime endpoint when set.
	AuthPassword  string `env:"AUTH_PASSWORD"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	Store      string `env:"AURA_STORE" envDefault:"memory"`
	SQLitePath string `env:"AURA_SQLITE_PATH" envDefault:"aura.db"`

	DefaultLanguage string        `env:"AURA_DEFAULT_LANGUAGE" envDefault:"en"`
	ReplyProvider   string        `env:"AURA_REPLY_PROVIDER" envDefault:"canned"`
	ReplyDelay      time.Duration `env:"AURA_REPLY_DELAY" envDefault:"1500ms"`
	CaptureMode     string        `env:"AURA_CAPTURE_MODE" envDefault:"transcript"`
	CaptureMax      time.Duration `env:"AURA_CAPTURE_MAX" envDefault:"30s"`
	SOSCountdown    time.Duration `env:"AURA_SOS_COUNTDOWN" envDefault:"5s"`
	AudioCodec      string        `env:"AURA_AUDIO_CODEC" envDefault:"pcm"`

	AssemblyAIKey string `env:"ASSEMBLYAI_API_KEY"`

	DeepgramKey   string `env:"DEEPGRAM_API_KEY"`
	DeepgramModel string `env:"DEEPGRAM_MODEL" envDefault:"aura-2-thalia-en"`

	ElevenLabsKey     string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`

	CerebrasKey     string `env:"CEREBRAS_API_KEY"`
	CerebrasModelID string `env:"CEREBRAS_MODEL_ID" envDefault:"gpt-oss-120b"`
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiKey       string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `env:"TWILIO_FROM"`
	EmergencyContact string `env:"EMERGENCY_CONTACT"`

	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseBucket         string `env:"SUPABASE_BUCKET" envDefault:"voice-recording"`
}

// Load reads .env (if present) and environment variables and returns Config with sane defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.warnMissing()
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case "memory", "sqlite":
	default:
		return errors.Errorf("AURA_STORE must be memory or sqlite, got %q", c.Store)
	}
	switch c.ReplyProvider {
	case "canned", "cerebras", "openai", "gemini":
	default:
		return errors.Errorf("AURA_REPLY_PROVIDER must be canned, cerebras, openai or gemini, got %q", c.ReplyProvider)
	}
	switch c.CaptureMode {
	case "transcript", "audio":
	default:
		return errors.Errorf("AURA_CAPTURE_MODE must be transcript or audio, got %q", c.CaptureMode)
	}
	switch c.AudioCodec {
	case "pcm", "opus":
	default:
		return errors.Errorf("AURA_AUDIO_CODEC must be pcm or opus, got %q", c.AudioCodec)
	}
	switch c.DefaultLanguage {
	case "en", "vi":
	default:
		return errors.Errorf("AURA_DEFAULT_LANGUAGE must be en or vi, got %q", c.DefaultLanguage)
	}
	if c.CaptureMax <= 0 {
		return errors.New("AURA_CAPTURE_MAX must be positive")
	}
	if c.SOSCountdown < time.Second {
		return errors.New("AURA_SOS_COUNTDOWN must be at least 1s")
	}
	return nil
}

func (c Config) warnMissing() {
	if c.CaptureMode == "transcript" && c.AssemblyAIKey == "" {
		slog.Warn("ASSEMBLYAI_API_KEY not set - streaming transcription will not work")
	}
	if c.CaptureMode == "audio" && c.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set - server-side transcription will not work")
	}
	if c.DeepgramKey == "" {
		slog.Warn("DEEPGRAM_API_KEY not set - English speech output will not work")
	}
	if c.ElevenLabsKey == "" || c.ElevenLabsVoiceID == "" {
		slog.Warn("ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - Vietnamese speech falls back to the default voice")
	}
	switch c.ReplyProvider {
	case "cerebras":
		if c.CerebrasKey == "" {
			slog.Warn("CEREBRAS_API_KEY not set - LLM will not work")
		}
	case "openai":
		if c.OpenAIKey == "" {
			slog.Warn("OPENAI_API_KEY not set - LLM will not work")
		}
	case "gemini":
		if c.GeminiKey == "" {
			slog.Warn("GEMINI_API_KEY not set - LLM will not work")
		}
	}
	if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.EmergencyContact == "" {
		slog.Warn("Twilio credentials or EMERGENCY_CONTACT not set - SOS will not notify family")
	}
	slog.Info("config loaded", "http_address", c.HTTPAddress, "store", c.Store, "reply_provider", c.ReplyProvider)
}

// TwilioEnabled reports whether emergency notifications can be sent.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != "" && c.EmergencyContact != ""
}

// SupabaseEnabled reports whether recordings can be archived.
func (c Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}
