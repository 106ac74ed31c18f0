package api

import (
	"net/http"
)

// handleSpotifyURL returns the authorization URL for connecting a twin's
// Spotify account. The twin id rides in the OAuth state parameter and
// comes back on the callback.
func handleSpotifyURL(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Spotify.Configured() {
			httpError(w, http.StatusConflict, "invalid_request_error", "Spotify integration is not configured")
			return
		}

		twinID := r.URL.Query().Get("twin_id")
		if twinID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "twin_id is required")
			return
		}
		if _, ok := loadTwin(w, deps, twinID); !ok {
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"url": deps.Spotify.AuthURL(twinID),
		})
	}
}

// handleSpotifyCallback completes the OAuth exchange, stores the refresh
// token, and re-synthesizes the persona with music data included. A failed
// re-synthesis still keeps the token; the next profile update will pick
// the music source up.
func handleSpotifyCallback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "authorization denied: %s", errMsg)
			return
		}

		code := r.URL.Query().Get("code")
		twinID := r.URL.Query().Get("state")
		if code == "" || twinID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "code and state are required")
			return
		}

		twin, ok := loadTwin(w, deps, twinID)
		if !ok {
			return
		}

		tok, err := deps.Spotify.Exchange(r.Context(), code)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "token exchange failed: %v", err)
			return
		}
		if tok.RefreshToken == "" {
			httpError(w, http.StatusBadGateway, "api_error", "token exchange returned no refresh token")
			return
		}

		if err := deps.Store.SetSpotifyRefreshToken(twin.ID, tok.RefreshToken); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save token: %v", err)
			return
		}
		twin.SpotifyRefreshToken = tok.RefreshToken

		personaJSON, sourcesJSON, err := synthesize(r.Context(), deps, twin)
		if err != nil {
			deps.Logger.Warn("re-synthesis after spotify connect failed", "twin", twin.ID, "error", err)
		} else if err := deps.Store.SetPersona(twin.ID, personaJSON, sourcesJSON); err != nil {
			deps.Logger.Error("failed to save persona after spotify connect", "twin", twin.ID, "error", err)
		}

		deps.Logger.Info("spotify connected", "twin", twin.ID)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Spotify connected. You can close this window.\n"))
	}
}
