package profile

import (
	"fmt"
	"time"
)

// Status is the availability state of one external profile source.
// Exactly one variant's fields may be populated on a source value:
// success carries data, error carries a message, not_provided carries
// nothing.
type Status string

const (
	StatusNotProvided Status = "not_provided"
	StatusError       Status = "error"
	StatusSuccess     Status = "success"
)

// FilmRating is one rated film from the film source, most recent first.
type FilmRating struct {
	Title  string  `json:"title"`
	Rating float64 `json:"rating,omitempty"` // 0–5; 0 means unrated
	Year   int     `json:"year,omitempty"`
}

// FilmSource is the normalized view of a Letterboxd profile.
type FilmSource struct {
	Status        Status       `json:"status"`
	Error         string       `json:"error,omitempty"`
	RecentRatings []FilmRating `json:"recent_ratings,omitempty"`
	Favorites     []string     `json:"favorites,omitempty"`
	Genres        []string     `json:"genres,omitempty"`
}

// Track is one recently played track from the music source.
type Track struct {
	Name     string    `json:"name"`
	Artist   string    `json:"artist,omitempty"`
	PlayedAt time.Time `json:"played_at"`
}

// MusicSource is the normalized view of a Spotify account.
type MusicSource struct {
	Status       Status   `json:"status"`
	Error        string   `json:"error,omitempty"`
	TopArtists   []string `json:"top_artists,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	RecentTracks []Track  `json:"recent_tracks,omitempty"`
}

// Sources bundles both normalized profile sources for a twin.
type Sources struct {
	Film  FilmSource  `json:"film"`
	Music MusicSource `json:"music"`
}

// Validate enforces the one-variant invariant before persistence.
func (s FilmSource) Validate() error {
	return validateVariant("film", s.Status, s.Error,
		len(s.RecentRatings)+len(s.Favorites)+len(s.Genres))
}

// Validate enforces the one-variant invariant before persistence.
func (s MusicSource) Validate() error {
	return validateVariant("music", s.Status, s.Error,
		len(s.TopArtists)+len(s.Genres)+len(s.RecentTracks))
}

// Validate checks both sources.
func (s Sources) Validate() error {
	if err := s.Film.Validate(); err != nil {
		return err
	}
	return s.Music.Validate()
}

func validateVariant(name string, status Status, errMsg string, dataLen int) error {
	switch status {
	case StatusSuccess:
		if errMsg != "" {
			return fmt.Errorf("%s source: success variant carries an error message", name)
		}
	case StatusError:
		if errMsg == "" {
			return fmt.Errorf("%s source: error variant has no message", name)
		}
		if dataLen > 0 {
			return fmt.Errorf("%s source: error variant carries data fields", name)
		}
	case StatusNotProvided:
		if errMsg != "" || dataLen > 0 {
			return fmt.Errorf("%s source: not_provided variant carries data", name)
		}
	default:
		return fmt.Errorf("%s source: unknown status %q", name, status)
	}
	return nil
}
