package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAuthBaseURL = "https://accounts.spotify.com"
	defaultAPIBaseURL  = "https://api.spotify.com"
	requestTimeout     = 10 * time.Second

	// Scopes needed for top artists and recently played reads.
	scopes = "user-top-read user-read-recently-played"
)

// Config holds the OAuth application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Overridable for tests; defaults applied by New.
	AuthBaseURL string
	APIBaseURL  string
}

// Client talks to the Spotify accounts service and Web API. It is an
// explicitly constructed collaborator: all configuration is passed at
// construction time so tests can substitute endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client from the given config.
func New(cfg Config) *Client {
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = defaultAuthBaseURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	cfg.AuthBaseURL = strings.TrimRight(cfg.AuthBaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Configured reports whether OAuth credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// Token is the result of a code exchange or refresh. RefreshToken may be
// empty on refresh responses; callers keep the previous one in that case.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthURL returns the authorization-code URL the user visits to grant access.
func (c *Client) AuthURL(state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"scope":         {scopes},
		"redirect_uri":  {c.cfg.RedirectURL},
		"state":         {state},
	}
	return c.cfg.AuthBaseURL + "/authorize?" + q.Encode()
}

// Exchange trades an authorization code for access and refresh tokens.
func (c *Client) Exchange(ctx context.Context, code string) (Token, error) {
	return c.token(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURL},
	})
}

// Refresh obtains a fresh access token from a stored refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	return c.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *Client) token(ctx context.Context, form url.Values) (Token, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthBaseURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("creating token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Token{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("token response missing access_token")
	}
	return tok, nil
}

// Artist is a top-artist entry with its genre tags.
type Artist struct {
	Name   string
	Genres []string
}

// PlayedTrack is one recently played track.
type PlayedTrack struct {
	Track    string
	Artist   string
	PlayedAt time.Time
}

type topArtistsResponse struct {
	Items []struct {
		Name   string   `json:"name"`
		Genres []string `json:"genres"`
	} `json:"items"`
}

// TopArtists returns the user's top artists (medium term, up to 20).
func (c *Client) TopArtists(ctx context.Context, accessToken string) ([]Artist, error) {
	var out topArtistsResponse
	if err := c.apiGet(ctx, accessToken, "/v1/me/top/artists?limit=20", &out); err != nil {
		return nil, err
	}
	artists := make([]Artist, len(out.Items))
	for i, item := range out.Items {
		artists[i] = Artist{Name: item.Name, Genres: item.Genres}
	}
	return artists, nil
}

type recentlyPlayedResponse struct {
	Items []struct {
		PlayedAt time.Time `json:"played_at"`
		Track    struct {
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"track"`
	} `json:"items"`
}

// RecentlyPlayed returns the user's recently played tracks (up to 50),
// most recent first.
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string) ([]PlayedTrack, error) {
	var out recentlyPlayedResponse
	if err := c.apiGet(ctx, accessToken, "/v1/me/player/recently-played?limit=50", &out); err != nil {
		return nil, err
	}
	tracks := make([]PlayedTrack, 0, len(out.Items))
	for _, item := range out.Items {
		t := PlayedTrack{Track: item.Track.Name, PlayedAt: item.PlayedAt}
		if len(item.Track.Artists) > 0 {
			t.Artist = item.Track.Artists[0].Name
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (c *Client) apiGet(ctx context.Context, accessToken, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("spotify access token expired or revoked")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
