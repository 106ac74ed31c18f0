package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, false, nil
	}
	return i, true, nil
}

func (b *mapBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *mapBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *mapBackend) Delete(key string) error          { delete(b.data, key); return nil }

func TestDefaults(t *testing.T) {
	t.Setenv("TWIN_OPENROUTER_API_KEY", "test-key")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "openai/gpt-4o-mini" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Chat.ContextTurns != 5 {
		t.Errorf("Chat.ContextTurns = %d, want 5", cfg.Chat.ContextTurns)
	}
}

func TestBackendValues(t *testing.T) {
	t.Setenv("TWIN_OPENROUTER_API_KEY", "test-key")

	b := &mapBackend{data: map[string]any{
		"server.port":        5000,
		"llm.model":          "anthropic/claude-sonnet-4",
		"chat.context_turns": 8,
		"spotify.client_id":  "abc123",
	}}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Chat.ContextTurns != 8 {
		t.Errorf("Chat.ContextTurns = %d, want 8", cfg.Chat.ContextTurns)
	}
	if cfg.Spotify.ClientID != "abc123" {
		t.Errorf("Spotify.ClientID = %q", cfg.Spotify.ClientID)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("TWIN_OPENROUTER_API_KEY", "env-key")
	t.Setenv("TWIN_SERVER_PORT", "9999")

	b := &mapBackend{data: map[string]any{
		"server.port": 5000,
	}}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "env-key")
	}
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("TWIN_OPENROUTER_API_KEY", "")

	_, err := loadWith(&mapBackend{data: map[string]any{}})
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
}

func TestSecretsNotListed(t *testing.T) {
	t.Setenv("TWIN_OPENROUTER_API_KEY", "test-key")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, info := range ShowAll(cfg) {
		if info.Key == "llm.openrouter_api_key" || info.Key == "spotify.client_secret" || info.Key == "server.api_token" {
			t.Errorf("secret key %q exposed by ShowAll", info.Key)
		}
	}
}
