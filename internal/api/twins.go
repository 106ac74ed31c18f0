package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wpulier/twin/internal/letterboxd"
	"github.com/wpulier/twin/internal/persona"
	"github.com/wpulier/twin/internal/storage"
)

type createTwinRequest struct {
	Name          string `json:"name"`
	Bio           string `json:"bio"`
	LetterboxdURL string `json:"letterboxd_url"`
}

type updateTwinRequest struct {
	Bio           *string `json:"bio"`
	LetterboxdURL *string `json:"letterboxd_url"`
}

func handleCreateTwin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createTwinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		canonical := ""
		if req.LetterboxdURL != "" {
			_, c, err := letterboxd.ValidateURL(req.LetterboxdURL)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid letterboxd_url: %v", err)
				return
			}
			canonical = c
		}

		now := time.Now().UTC()
		twin := storage.Twin{
			ID:            uuid.New().String(),
			Name:          strings.TrimSpace(req.Name),
			Bio:           req.Bio,
			LetterboxdURL: canonical,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		personaJSON, sourcesJSON, err := synthesize(r.Context(), deps, twin)
		if err != nil {
			writeSynthesisError(w, err)
			return
		}
		twin.PersonaJSON = personaJSON
		twin.SourcesJSON = sourcesJSON

		if err := deps.Store.CreateTwin(twin); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save twin: %v", err)
			return
		}

		deps.Logger.Info("twin created", "id", twin.ID, "name", twin.Name)
		writeJSON(w, http.StatusCreated, toTwinResponse(twin))
	}
}

func handleListTwins(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		twins, err := deps.Store.ListTwins()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list twins: %v", err)
			return
		}

		out := make([]twinResponse, len(twins))
		for i, t := range twins {
			out[i] = toTwinResponse(t)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetTwin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		twin, ok := loadTwin(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toTwinResponse(twin))
	}
}

// handleUpdateTwin applies profile changes and re-synthesizes the persona
// from scratch. The stored persona is only replaced once the new one is
// complete; a failed re-synthesis leaves the previous persona intact.
func handleUpdateTwin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		twin, ok := loadTwin(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req updateTwinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Bio == nil && req.LetterboxdURL == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "nothing to update")
			return
		}

		if req.Bio != nil {
			twin.Bio = *req.Bio
		}
		if req.LetterboxdURL != nil {
			if *req.LetterboxdURL == "" {
				twin.LetterboxdURL = ""
			} else {
				_, canonical, err := letterboxd.ValidateURL(*req.LetterboxdURL)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid letterboxd_url: %v", err)
					return
				}
				twin.LetterboxdURL = canonical
			}
		}

		personaJSON, sourcesJSON, err := synthesize(r.Context(), deps, twin)
		if err != nil {
			writeSynthesisError(w, err)
			return
		}

		if err := deps.Store.UpdateTwinProfile(twin.ID, twin.Bio, twin.LetterboxdURL); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update twin: %v", err)
			return
		}
		if err := deps.Store.SetPersona(twin.ID, personaJSON, sourcesJSON); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save persona: %v", err)
			return
		}

		updated, ok := loadTwin(w, deps, twin.ID)
		if !ok {
			return
		}
		deps.Logger.Info("twin updated", "id", twin.ID)
		writeJSON(w, http.StatusOK, toTwinResponse(updated))
	}
}

// synthesize gathers both sources for the twin's current profile inputs and
// runs the two-pass persona build, returning both as JSON for persistence.
func synthesize(ctx context.Context, deps Deps, twin storage.Twin) (personaJSON, sourcesJSON string, err error) {
	username := ""
	if twin.LetterboxdURL != "" {
		username, _, err = letterboxd.ValidateURL(twin.LetterboxdURL)
		if err != nil {
			return "", "", err
		}
	}

	sources := deps.Gatherer.Gather(ctx, username, twin.SpotifyRefreshToken)
	if err := sources.Validate(); err != nil {
		return "", "", err
	}

	p, err := deps.Synthesizer.Synthesize(ctx, twin.Name, twin.Bio, sources)
	if err != nil {
		return "", "", err
	}

	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	sb, err := json.Marshal(sources)
	if err != nil {
		return "", "", err
	}
	return string(pb), string(sb), nil
}

func writeSynthesisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persona.ErrMalformedPersona):
		httpError(w, http.StatusBadGateway, "api_error", "persona synthesis produced unusable output: %v", err)
	case errors.Is(err, persona.ErrGeneration):
		httpError(w, http.StatusBadGateway, "api_error", "persona synthesis failed: %v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "persona synthesis failed: %v", err)
	}
}

// loadTwin fetches a twin and writes the 404 itself when missing.
func loadTwin(w http.ResponseWriter, deps Deps, id string) (storage.Twin, bool) {
	twin, err := deps.Store.GetTwin(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "twin not found")
		return storage.Twin{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load twin: %v", err)
		return storage.Twin{}, false
	}
	return twin, true
}
