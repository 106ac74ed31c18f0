package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Spotify SpotifyConfig
	Storage StorageConfig
	Chat    ChatConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string // optional; bearer auth is disabled when empty
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type StorageConfig struct {
	DataDir string
}

type ChatConfig struct {
	ContextTurns int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},
		Spotify: SpotifyConfig{
			RedirectURL: "http://127.0.0.1:4000/auth/spotify/callback",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Chat: ChatConfig{
			ContextTurns: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file (if present), the JSON config
// file at $XDG_CONFIG_HOME/twin/config.json, and TWIN_* environment
// variables. Environment variables win over file values.
func Load() (Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenRouter API key. " +
			"Set it via environment variable TWIN_OPENROUTER_API_KEY")
	}

	if cfg.Chat.ContextTurns <= 0 {
		cfg.Chat.ContextTurns = 5
	}

	return cfg, nil
}
