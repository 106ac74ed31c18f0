package persona

import (
	"fmt"
	"strings"

	"github.com/wpulier/twin/internal/llm"
	"github.com/wpulier/twin/internal/profile"
)

const insightSystemPrompt = `You are a perceptive profiler. Given a short bio and summaries of a person's film and music taste, write a concise free-text analysis of their personality: what they care about, how they likely talk, what their taste says about them.

Rules:
- Base every observation on the material given. Do not invent films, artists, or facts that are not present.
- If a section says no data is available, do not speculate about that medium at all.
- Write two to four short paragraphs of plain prose. No headings, no lists, no JSON.`

const personaSystemPrompt = `You build character cards for conversational stand-ins. Given a person's bio, their taste summaries, and an analyst's read of their personality, produce a persona as JSON.

Rules:
- interests: concrete interests evidenced by the bio or the taste data. Never list an interest the material does not support.
- style: one or two sentences describing how this person writes and speaks in casual conversation.
- traits: short personality adjectives or phrases grounded in the analysis.
- personality_insight: a condensed version of the analyst's read, written in second person about the person.
- If a section says no data is available, draw nothing from that medium.
- Respond with the JSON object only.`

// BuildInsightPrompt assembles the first-pass messages: bio plus per-source
// summaries, with absent sources stated explicitly so the model does not
// fill the gap with invention.
func BuildInsightPrompt(bio string, sources profile.Sources) []llm.Message {
	var b strings.Builder

	b.WriteString("[Bio]\n")
	if strings.TrimSpace(bio) == "" {
		b.WriteString("no data available\n")
	} else {
		b.WriteString(strings.TrimSpace(bio))
		b.WriteString("\n")
	}

	b.WriteString("\n[Film taste (Letterboxd)]\n")
	b.WriteString(summarizeFilm(sources.Film))

	b.WriteString("\n[Music taste (Spotify)]\n")
	b.WriteString(summarizeMusic(sources.Music))

	return []llm.Message{
		{Role: "system", Content: insightSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// BuildPersonaPrompt assembles the second-pass messages: the same evidence
// plus the free-text insight from the first pass.
func BuildPersonaPrompt(name, bio string, sources profile.Sources, insight string) []llm.Message {
	var b strings.Builder

	fmt.Fprintf(&b, "Build the persona for %s.\n\n", name)

	b.WriteString("[Bio]\n")
	if strings.TrimSpace(bio) == "" {
		b.WriteString("no data available\n")
	} else {
		b.WriteString(strings.TrimSpace(bio))
		b.WriteString("\n")
	}

	b.WriteString("\n[Film taste (Letterboxd)]\n")
	b.WriteString(summarizeFilm(sources.Film))

	b.WriteString("\n[Music taste (Spotify)]\n")
	b.WriteString(summarizeMusic(sources.Music))

	b.WriteString("\n[Analyst's read]\n")
	b.WriteString(strings.TrimSpace(insight))
	b.WriteString("\n")

	return []llm.Message{
		{Role: "system", Content: personaSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func summarizeFilm(src profile.FilmSource) string {
	if src.Status != profile.StatusSuccess {
		return "no data available\n"
	}

	var b strings.Builder
	if len(src.Favorites) > 0 {
		fmt.Fprintf(&b, "Favorite films: %s\n", strings.Join(src.Favorites, ", "))
	}
	if len(src.Genres) > 0 {
		fmt.Fprintf(&b, "Most-watched genres: %s\n", strings.Join(src.Genres, ", "))
	}
	if len(src.RecentRatings) > 0 {
		b.WriteString("Recent ratings:\n")
		for _, r := range src.RecentRatings {
			b.WriteString("- ")
			b.WriteString(r.Title)
			if r.Year > 0 {
				fmt.Fprintf(&b, " (%d)", r.Year)
			}
			if r.Rating > 0 {
				fmt.Fprintf(&b, ": %.1f/5", r.Rating)
			} else {
				b.WriteString(": watched, not rated")
			}
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "no data available\n"
	}
	return b.String()
}

func summarizeMusic(src profile.MusicSource) string {
	if src.Status != profile.StatusSuccess {
		return "no data available\n"
	}

	var b strings.Builder
	if len(src.TopArtists) > 0 {
		fmt.Fprintf(&b, "Top artists: %s\n", strings.Join(src.TopArtists, ", "))
	}
	if len(src.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(src.Genres, ", "))
	}
	if len(src.RecentTracks) > 0 {
		b.WriteString("Recently played:\n")
		for _, t := range src.RecentTracks {
			b.WriteString("- ")
			b.WriteString(t.Name)
			if t.Artist != "" {
				fmt.Fprintf(&b, " by %s", t.Artist)
			}
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "no data available\n"
	}
	return b.String()
}

func personaSchema() *llm.Schema {
	stringItem := &llm.SchemaProperty{Type: "string"}
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"interests": {
				Type:        "array",
				Description: "Concrete interests evidenced by the bio or taste data",
				Items:       stringItem,
			},
			"style": {
				Type:        "string",
				Description: "How this person writes and speaks in casual conversation",
			},
			"traits": {
				Type:        "array",
				Description: "Short personality adjectives or phrases",
				Items:       stringItem,
			},
			"personality_insight": {
				Type:        "string",
				Description: "Condensed personality analysis addressed to the person",
			},
		},
		Required: []string{"interests", "style", "traits", "personality_insight"},
	}
}
