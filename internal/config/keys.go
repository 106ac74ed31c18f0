package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TWIN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "TWIN_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "llm.base_url", typ: kString, env: "TWIN_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.openrouter_api_key", typ: kString, env: "TWIN_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "TWIN_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "spotify.client_id", typ: kString, env: "TWIN_SPOTIFY_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Spotify.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Spotify.ClientID },
	},
	{
		key: "spotify.client_secret", typ: kString, env: "TWIN_SPOTIFY_CLIENT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Spotify.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Spotify.ClientSecret },
	},
	{
		key: "spotify.redirect_url", typ: kString, env: "TWIN_SPOTIFY_REDIRECT_URL",
		apply:   func(cfg *Config, v any) { cfg.Spotify.RedirectURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Spotify.RedirectURL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TWIN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "chat.context_turns", typ: kInt, env: "TWIN_CHAT_CONTEXT_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Chat.ContextTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.ContextTurns },
	},
	{
		key: "log.level", typ: kString, env: "TWIN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
