package profile

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/wpulier/twin/internal/letterboxd"
	"github.com/wpulier/twin/internal/spotify"
)

// FilmFetcher is the slice of the Letterboxd client the Gatherer needs.
type FilmFetcher interface {
	FetchRatings(ctx context.Context, username string) ([]letterboxd.Entry, error)
}

// MusicFetcher is the slice of the Spotify client the Gatherer needs.
type MusicFetcher interface {
	Configured() bool
	Refresh(ctx context.Context, refreshToken string) (spotify.Token, error)
	TopArtists(ctx context.Context, accessToken string) ([]spotify.Artist, error)
	RecentlyPlayed(ctx context.Context, accessToken string) ([]spotify.PlayedTrack, error)
}

// Gatherer fetches both profile providers concurrently and normalizes the
// results. Provider failures never escape: each is recovered into the
// error variant of its own source so a broken integration degrades the
// persona instead of blocking twin creation.
type Gatherer struct {
	film   FilmFetcher
	music  MusicFetcher
	logger *slog.Logger
}

// NewGatherer creates a Gatherer from the two provider clients.
func NewGatherer(film FilmFetcher, music MusicFetcher) *Gatherer {
	return &Gatherer{film: film, music: music, logger: slog.Default()}
}

// Gather fetches film data for letterboxdUsername and music data for the
// stored Spotify refresh token. An empty username or token means that
// source was not provided. The two fetches run concurrently; Gather
// itself never returns an error.
func (g *Gatherer) Gather(ctx context.Context, letterboxdUsername, spotifyRefreshToken string) Sources {
	var sources Sources

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		sources.Film = g.gatherFilm(ctx, letterboxdUsername)
		return nil
	})
	eg.Go(func() error {
		sources.Music = g.gatherMusic(ctx, spotifyRefreshToken)
		return nil
	})

	// Goroutines only write disjoint fields and never fail.
	_ = eg.Wait()
	return sources
}

func (g *Gatherer) gatherFilm(ctx context.Context, username string) FilmSource {
	if username == "" {
		return FilmNotProvided()
	}

	entries, err := g.film.FetchRatings(ctx, username)
	if err != nil {
		g.logger.Warn("letterboxd fetch failed", "username", username, "error", err)
		return FilmError("could not load Letterboxd ratings: " + err.Error())
	}
	if len(entries) == 0 {
		return FilmError("Letterboxd profile has no rated films yet")
	}
	return NormalizeFilm(entries)
}

func (g *Gatherer) gatherMusic(ctx context.Context, refreshToken string) MusicSource {
	if refreshToken == "" {
		return MusicNotProvided()
	}
	if !g.music.Configured() {
		return MusicError("Spotify integration is not configured")
	}

	tok, err := g.music.Refresh(ctx, refreshToken)
	if err != nil {
		g.logger.Warn("spotify token refresh failed", "error", err)
		return MusicError("could not refresh Spotify access: " + err.Error())
	}

	artists, err := g.music.TopArtists(ctx, tok.AccessToken)
	if err != nil {
		g.logger.Warn("spotify top artists failed", "error", err)
		return MusicError("could not load Spotify listening data: " + err.Error())
	}

	// Recently played is additive; its failure should not discard artists.
	tracks, err := g.music.RecentlyPlayed(ctx, tok.AccessToken)
	if err != nil {
		g.logger.Warn("spotify recently played failed", "error", err)
		tracks = nil
	}

	return NormalizeMusic(artists, tracks)
}
