package profile

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/wpulier/twin/internal/letterboxd"
	"github.com/wpulier/twin/internal/spotify"
)

func TestNormalizeFilm_FavoritesThreshold(t *testing.T) {
	entries := []letterboxd.Entry{
		{Title: "Stalker", Rating: 5.0},
		{Title: "Heat", Rating: 4.5},
		{Title: "Okay Film", Rating: 3.0},
	}

	src := NormalizeFilm(entries)

	if src.Status != StatusSuccess {
		t.Fatalf("Status = %q", src.Status)
	}
	want := []string{"Stalker", "Heat"}
	if !reflect.DeepEqual(src.Favorites, want) {
		t.Errorf("Favorites = %v, want %v", src.Favorites, want)
	}
}

func TestNormalizeFilm_FavoritesKeepSourceOrder(t *testing.T) {
	// A lower-rated favorite earlier in the feed must stay ahead of a
	// higher-rated one later: no secondary sort by rating magnitude.
	entries := []letterboxd.Entry{
		{Title: "First", Rating: 4.5},
		{Title: "Second", Rating: 5.0},
	}

	src := NormalizeFilm(entries)

	want := []string{"First", "Second"}
	if !reflect.DeepEqual(src.Favorites, want) {
		t.Errorf("Favorites = %v, want %v", src.Favorites, want)
	}
}

func TestNormalizeFilm_Caps(t *testing.T) {
	var entries []letterboxd.Entry
	for i := 0; i < 15; i++ {
		entries = append(entries, letterboxd.Entry{Title: "Film", Rating: 5.0})
	}

	src := NormalizeFilm(entries)

	if len(src.RecentRatings) != 10 {
		t.Errorf("len(RecentRatings) = %d, want 10", len(src.RecentRatings))
	}
	if len(src.Favorites) != 5 {
		t.Errorf("len(Favorites) = %d, want 5", len(src.Favorites))
	}
}

func TestRankGenres_FrequencyThenFirstSeen(t *testing.T) {
	lists := [][]string{
		{"A", "B"},
		{"A", "C"},
		{"A"},
	}

	got := rankGenres(lists, 5)

	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rankGenres = %v, want %v", got, want)
	}
}

func TestRankGenres_Cap(t *testing.T) {
	lists := [][]string{{"A", "B", "C", "D", "E", "F", "G"}}

	got := rankGenres(lists, 5)
	if len(got) != 5 {
		t.Errorf("len = %d, want 5", len(got))
	}
}

func TestNormalizeMusic(t *testing.T) {
	artists := []spotify.Artist{
		{Name: "Boards of Canada", Genres: []string{"idm", "downtempo"}},
		{Name: "Radiohead", Genres: []string{"art rock", "idm"}},
	}
	tracks := []spotify.PlayedTrack{
		{Track: "Roygbiv", Artist: "Boards of Canada", PlayedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
	}

	src := NormalizeMusic(artists, tracks)

	if src.Status != StatusSuccess {
		t.Fatalf("Status = %q", src.Status)
	}
	if !reflect.DeepEqual(src.TopArtists, []string{"Boards of Canada", "Radiohead"}) {
		t.Errorf("TopArtists = %v", src.TopArtists)
	}
	// idm appears twice, so it outranks the singles; then first-seen order.
	if !reflect.DeepEqual(src.Genres, []string{"idm", "downtempo", "art rock"}) {
		t.Errorf("Genres = %v", src.Genres)
	}
	if len(src.RecentTracks) != 1 || src.RecentTracks[0].Name != "Roygbiv" {
		t.Errorf("RecentTracks = %+v", src.RecentTracks)
	}
}

func TestSources_JSONRoundTrip(t *testing.T) {
	orig := Sources{
		Film: FilmSource{
			Status:        StatusSuccess,
			RecentRatings: []FilmRating{{Title: "Stalker", Rating: 5, Year: 1979}},
			Favorites:     []string{"Stalker"},
			Genres:        []string{"Drama"},
		},
		Music: MusicSource{
			Status: StatusError,
			Error:  "could not refresh Spotify access",
		},
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Sources
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(orig, got) {
		t.Errorf("round-trip mismatch:\n  orig %+v\n  got  %+v", orig, got)
	}
}

func TestValidate_ExactlyOneVariant(t *testing.T) {
	valid := []Sources{
		{Film: FilmNotProvided(), Music: MusicNotProvided()},
		{Film: FilmError("boom"), Music: MusicNotProvided()},
		{Film: NormalizeFilm(nil), Music: NormalizeMusic(nil, nil)},
	}
	for i, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("valid[%d]: %v", i, err)
		}
	}

	invalid := []Sources{
		{Film: FilmSource{Status: StatusError}, Music: MusicNotProvided()},
		{Film: FilmSource{Status: StatusNotProvided, Favorites: []string{"x"}}, Music: MusicNotProvided()},
		{Film: FilmNotProvided(), Music: MusicSource{Status: StatusError, Error: "e", TopArtists: []string{"x"}}},
		{Film: FilmSource{Status: "bogus"}, Music: MusicNotProvided()},
	}
	for i, s := range invalid {
		if err := s.Validate(); err == nil {
			t.Errorf("invalid[%d]: expected error", i)
		}
	}
}
