package config

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress     string
	PublicBaseURL   string
	LogLevel        string
	CerebrasKey     string
	CerebrasModelID string

	// AuthPassword protects the WebSocket and session endpoints when set.
	AuthPassword string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// ConversationFile overrides the embedded conversation defaults when set.
	ConversationFile string
}

// Load reads environment variables (and .env when present) and returns Config with sane
// defaults. log may be nil.
func Load(log *zap.Logger) Config {
	if log == nil {
		log = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", zap.Error(err))
	}

	cfg := Config{
		HTTPAddress:        getenv("HTTP_ADDRESS", ":8080"),
		PublicBaseURL:      os.Getenv("PUBLIC_BASE_URL"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		AuthPassword:       os.Getenv("AUTH_PASSWORD"),
		CerebrasKey:        os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID:    getenv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),
		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber:  os.Getenv("TWILIO_PHONE_NUMBER"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_BUCKET", "call-sessions"),
		ConversationFile:   os.Getenv("CONVERSATION_CONFIG"),
	}

	if cfg.CerebrasKey == "" {
		log.Warn("CEREBRAS_API_KEY not set - using literal slot extraction")
	}
	if cfg.TwilioAuthToken == "" {
		log.Warn("TWILIO_AUTH_TOKEN not set - Twilio webhooks will be rejected")
	}
	if !cfg.SMSEnabled() {
		log.Warn("Twilio messaging not configured - booking confirmations will not be sent")
	}
	if !cfg.ArchiveEnabled() {
		log.Warn("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set - sessions will not be archived")
	}

	log.Info("config loaded", zap.String("http_address", cfg.HTTPAddress))
	return cfg
}

func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

func (c Config) ArchiveEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
