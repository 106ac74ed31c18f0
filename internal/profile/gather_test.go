package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/wpulier/twin/internal/letterboxd"
	"github.com/wpulier/twin/internal/spotify"
)

type mockFilm struct {
	entries []letterboxd.Entry
	err     error
}

func (m *mockFilm) FetchRatings(ctx context.Context, username string) ([]letterboxd.Entry, error) {
	return m.entries, m.err
}

type mockMusic struct {
	configured bool
	refreshErr error
	artists    []spotify.Artist
	artistsErr error
	tracks     []spotify.PlayedTrack
	tracksErr  error
}

func (m *mockMusic) Configured() bool { return m.configured }

func (m *mockMusic) Refresh(ctx context.Context, refreshToken string) (spotify.Token, error) {
	if m.refreshErr != nil {
		return spotify.Token{}, m.refreshErr
	}
	return spotify.Token{AccessToken: "at"}, nil
}

func (m *mockMusic) TopArtists(ctx context.Context, accessToken string) ([]spotify.Artist, error) {
	return m.artists, m.artistsErr
}

func (m *mockMusic) RecentlyPlayed(ctx context.Context, accessToken string) ([]spotify.PlayedTrack, error) {
	return m.tracks, m.tracksErr
}

func TestGather_NothingProvided(t *testing.T) {
	g := NewGatherer(&mockFilm{}, &mockMusic{configured: true})

	sources := g.Gather(context.Background(), "", "")

	if sources.Film.Status != StatusNotProvided {
		t.Errorf("Film.Status = %q", sources.Film.Status)
	}
	if sources.Music.Status != StatusNotProvided {
		t.Errorf("Music.Status = %q", sources.Music.Status)
	}
}

func TestGather_FilmFailureRecovered(t *testing.T) {
	g := NewGatherer(
		&mockFilm{err: errors.New("feed returned status 404")},
		&mockMusic{configured: true},
	)

	sources := g.Gather(context.Background(), "ghost", "")

	if sources.Film.Status != StatusError {
		t.Fatalf("Film.Status = %q, want error", sources.Film.Status)
	}
	if sources.Film.Error == "" {
		t.Error("Film.Error is empty")
	}
	if err := sources.Validate(); err != nil {
		t.Errorf("recovered sources invalid: %v", err)
	}
}

func TestGather_BothSucceed(t *testing.T) {
	g := NewGatherer(
		&mockFilm{entries: []letterboxd.Entry{{Title: "Stalker", Rating: 5}}},
		&mockMusic{
			configured: true,
			artists:    []spotify.Artist{{Name: "Radiohead", Genres: []string{"art rock"}}},
			tracks:     []spotify.PlayedTrack{{Track: "Let Down", Artist: "Radiohead"}},
		},
	)

	sources := g.Gather(context.Background(), "will", "rt")

	if sources.Film.Status != StatusSuccess {
		t.Errorf("Film.Status = %q", sources.Film.Status)
	}
	if sources.Music.Status != StatusSuccess {
		t.Errorf("Music.Status = %q", sources.Music.Status)
	}
	if len(sources.Music.TopArtists) != 1 || sources.Music.TopArtists[0] != "Radiohead" {
		t.Errorf("TopArtists = %v", sources.Music.TopArtists)
	}
}

func TestGather_EmptyFeedIsError(t *testing.T) {
	g := NewGatherer(&mockFilm{entries: nil}, &mockMusic{configured: true})

	sources := g.Gather(context.Background(), "will", "")
	if sources.Film.Status != StatusError {
		t.Errorf("Film.Status = %q, want error for empty feed", sources.Film.Status)
	}
}

func TestGather_RecentTracksFailureKeepsArtists(t *testing.T) {
	g := NewGatherer(&mockFilm{}, &mockMusic{
		configured: true,
		artists:    []spotify.Artist{{Name: "Radiohead"}},
		tracksErr:  errors.New("rate limited"),
	})

	sources := g.Gather(context.Background(), "", "rt")

	if sources.Music.Status != StatusSuccess {
		t.Fatalf("Music.Status = %q", sources.Music.Status)
	}
	if len(sources.Music.TopArtists) != 1 {
		t.Errorf("TopArtists = %v", sources.Music.TopArtists)
	}
	if len(sources.Music.RecentTracks) != 0 {
		t.Errorf("RecentTracks = %v, want empty", sources.Music.RecentTracks)
	}
}

func TestGather_UnconfiguredSpotify(t *testing.T) {
	g := NewGatherer(&mockFilm{}, &mockMusic{configured: false})

	sources := g.Gather(context.Background(), "", "rt")
	if sources.Music.Status != StatusError {
		t.Errorf("Music.Status = %q, want error", sources.Music.Status)
	}
}
