package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wpulier/twin/internal/chat"
	"github.com/wpulier/twin/internal/persona"
	"github.com/wpulier/twin/internal/profile"
	"github.com/wpulier/twin/internal/spotify"
	"github.com/wpulier/twin/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Gatherer fetches and normalizes both profile sources.
type Gatherer interface {
	Gather(ctx context.Context, letterboxdUsername, spotifyRefreshToken string) profile.Sources
}

// Synthesizer builds a persona from a bio and gathered sources.
type Synthesizer interface {
	Synthesize(ctx context.Context, name, bio string, sources profile.Sources) (persona.Persona, error)
}

// ReplyStream is one in-flight streaming twin reply.
type ReplyStream interface {
	Recv() (string, error)
	Text() string
	Received() bool
	Close() error
}

// Replier opens streaming replies.
type Replier interface {
	Reply(ctx context.Context, twinName string, p persona.Persona, history []storage.Turn, message string) (ReplyStream, error)
}

// EngineReplier adapts *chat.Engine to the Replier interface.
type EngineReplier struct {
	Engine *chat.Engine
}

func (e EngineReplier) Reply(ctx context.Context, twinName string, p persona.Persona, history []storage.Turn, message string) (ReplyStream, error) {
	return e.Engine.Reply(ctx, twinName, p, history, message)
}

// SpotifyAuth is the slice of the Spotify client the OAuth handlers need.
type SpotifyAuth interface {
	Configured() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (spotify.Token, error)
}

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Store        *storage.Store
	Gatherer     Gatherer
	Synthesizer  Synthesizer
	Replier      Replier
	Spotify      SpotifyAuth
	Token        string // optional; empty disables bearer auth
	ContextTurns int
	Logger       *slog.Logger
}

// NewHandler builds the full HTTP API. The Spotify callback and the health
// check stay unauthenticated: the callback is hit by a browser redirect
// that cannot carry a bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/auth/spotify/callback", handleSpotifyCallback(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/twins", handleCreateTwin(deps))
		r.Get("/twins", handleListTwins(deps))
		r.Get("/twins/{id}", handleGetTwin(deps))
		r.Patch("/twins/{id}", handleUpdateTwin(deps))
		r.Post("/twins/{id}/chat", handleChat(deps))
		r.Get("/twins/{id}/messages", handleListMessages(deps))
		r.Get("/auth/spotify/url", handleSpotifyURL(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// twinResponse is the public view of a twin. The Spotify refresh token is
// never serialized; only its presence is reported.
type twinResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Bio              string          `json:"bio,omitempty"`
	LetterboxdURL    string          `json:"letterboxd_url,omitempty"`
	SpotifyConnected bool            `json:"spotify_connected"`
	Persona          json.RawMessage `json:"persona"`
	Sources          json.RawMessage `json:"sources"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

func toTwinResponse(t storage.Twin) twinResponse {
	return twinResponse{
		ID:               t.ID,
		Name:             t.Name,
		Bio:              t.Bio,
		LetterboxdURL:    t.LetterboxdURL,
		SpotifyConnected: t.SpotifyRefreshToken != "",
		Persona:          json.RawMessage(t.PersonaJSON),
		Sources:          json.RawMessage(t.SourcesJSON),
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        t.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
