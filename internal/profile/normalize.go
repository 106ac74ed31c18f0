package profile

import (
	"sort"

	"github.com/wpulier/twin/internal/letterboxd"
	"github.com/wpulier/twin/internal/spotify"
)

const (
	maxFavorites     = 5
	maxGenres        = 5
	maxRecentItems   = 10
	maxTopArtists    = 5
	ratingScale      = 5.0
	favoriteFraction = 0.9 // favorites rate at >= 90% of the scale
)

// FilmNotProvided marks the film source as never attempted.
func FilmNotProvided() FilmSource {
	return FilmSource{Status: StatusNotProvided}
}

// FilmError records a failed film-source fetch. The message is shown to
// the user, so callers pass cleaned-up text, not transport internals.
func FilmError(msg string) FilmSource {
	return FilmSource{Status: StatusError, Error: msg}
}

// NormalizeFilm converts raw feed entries into the film source shape.
// Favorites are entries rated at or above 90% of the 5-point scale, kept
// in feed order (most recent first) with no secondary sort by rating.
func NormalizeFilm(entries []letterboxd.Entry) FilmSource {
	src := FilmSource{Status: StatusSuccess}

	threshold := ratingScale * favoriteFraction
	var genreLists [][]string
	for _, e := range entries {
		if len(src.RecentRatings) < maxRecentItems {
			src.RecentRatings = append(src.RecentRatings, FilmRating{
				Title:  e.Title,
				Rating: e.Rating,
				Year:   e.Year,
			})
		}
		if e.Rating >= threshold && len(src.Favorites) < maxFavorites {
			src.Favorites = append(src.Favorites, e.Title)
		}
		genreLists = append(genreLists, e.Genres)
	}

	src.Genres = rankGenres(genreLists, maxGenres)
	return src
}

// MusicNotProvided marks the music source as never attempted.
func MusicNotProvided() MusicSource {
	return MusicSource{Status: StatusNotProvided}
}

// MusicError records a failed music-source fetch.
func MusicError(msg string) MusicSource {
	return MusicSource{Status: StatusError, Error: msg}
}

// NormalizeMusic converts top artists and recent plays into the music
// source shape. Genres are ranked across the artists' genre tags only;
// the film source's genres are aggregated separately so one provider's
// availability never affects the other's contribution.
func NormalizeMusic(artists []spotify.Artist, tracks []spotify.PlayedTrack) MusicSource {
	src := MusicSource{Status: StatusSuccess}

	var genreLists [][]string
	for _, a := range artists {
		if len(src.TopArtists) < maxTopArtists {
			src.TopArtists = append(src.TopArtists, a.Name)
		}
		genreLists = append(genreLists, a.Genres)
	}
	src.Genres = rankGenres(genreLists, maxGenres)

	for _, t := range tracks {
		if len(src.RecentTracks) >= maxRecentItems {
			break
		}
		src.RecentTracks = append(src.RecentTracks, Track{
			Name:     t.Track,
			Artist:   t.Artist,
			PlayedAt: t.PlayedAt,
		})
	}

	return src
}

// rankGenres counts genre frequency across all lists and returns the top
// genres by descending frequency, ties broken by first-seen order.
func rankGenres(lists [][]string, limit int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, list := range lists {
		for _, g := range list {
			if g == "" {
				continue
			}
			if _, seen := counts[g]; !seen {
				firstSeen[g] = order
				order++
			}
			counts[g]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	ranked := make([]string, 0, len(counts))
	for g := range counts {
		ranked = append(ranked, g)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return firstSeen[ranked[i]] < firstSeen[ranked[j]]
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
