package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Addr        string `env:"COMPI_ADDR" envDefault:":8100"`
	DBPath      string `env:"COMPI_DB_PATH" envDefault:"compi.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogDev      bool   `env:"COMPI_LOG_DEV" envDefault:"false"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	EnableGemini string `env:"ENABLE_GEMINI"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	EnableOpenAI  string `env:"ENABLE_OPENAI"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`

	ChatHistoryLimit int           `env:"COMPI_CHAT_HISTORY_LIMIT" envDefault:"100"`
	MapViewTTL       time.Duration `env:"COMPI_MAP_VIEW_TTL" envDefault:"30m"`
	LeafletBaseURL   string        `env:"COMPI_LEAFLET_BASE_URL" envDefault:"https://unpkg.com/leaflet@1.9.4/dist"`
}

// Load reads an optional .env file and parses the environment into a Config.
// A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	// A turn stores two messages; a smaller cap would evict the user's own message.
	if cfg.ChatHistoryLimit < 2 {
		return nil, fmt.Errorf("COMPI_CHAT_HISTORY_LIMIT must be at least 2, got %d", cfg.ChatHistoryLimit)
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseJWTSecret == "" {
		return nil, errors.New("SUPABASE_JWT_SECRET is required when SUPABASE_URL is set")
	}
	return &cfg, nil
}

// GeminiEnabled reports whether Gemini is switched on and has a key.
func (c *Config) GeminiEnabled() bool {
	return c.EnableGemini == "true" && c.GeminiAPIKey != ""
}

// OpenAIEnabled reports whether OpenAI is switched on and has a key.
func (c *Config) OpenAIEnabled() bool {
	return c.EnableOpenAI == "true" && c.OpenAIAPIKey != ""
}

// Flags is the payload of the debug endpoint.
type Flags struct {
	HasGeminiKey bool `json:"hasGeminiKey"`
	EnableGemini bool `json:"enableGemini"`
	HasOpenAIKey bool `json:"hasOpenAIKey"`
	EnableOpenAI bool `json:"enableOpenAI"`
}

type flagEnv struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	EnableGemini string `env:"ENABLE_GEMINI"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	EnableOpenAI string `env:"ENABLE_OPENAI"`
}

// ReadFlags reads the provider flags straight from the process environment.
// Only the literal "true" enables a provider.
func ReadFlags() (Flags, error) {
	var raw flagEnv
	if err := env.Parse(&raw); err != nil {
		return Flags{}, fmt.Errorf("parse flag env: %w", err)
	}
	return Flags{
		HasGeminiKey: raw.GeminiAPIKey != "",
		EnableGemini: raw.EnableGemini == "true",
		HasOpenAIKey: raw.OpenAIAPIKey != "",
		EnableOpenAI: raw.EnableOpenAI == "true",
	}, nil
}
