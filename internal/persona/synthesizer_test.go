package persona

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wpulier/twin/internal/llm"
	"github.com/wpulier/twin/internal/profile"
)

// stubCompleter replays canned completions and records the prompts it saw.
type stubCompleter struct {
	replies []string
	errs    []error
	calls   [][]llm.Message
	schemas []*llm.Schema
}

func (s *stubCompleter) Complete(ctx context.Context, model string, messages []llm.Message, schemaName string, jsonSchema *llm.Schema) (string, error) {
	i := len(s.calls)
	s.calls = append(s.calls, messages)
	s.schemas = append(s.schemas, jsonSchema)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("unexpected call")
}

const goodPersonaJSON = `{
	"interests": ["slow cinema", "electronic music"],
	"style": "Dry, a little wry, full sentences.",
	"traits": ["introspective", "curious"],
	"personality_insight": "You process the world through what you watch and listen to."
}`

func filmOnlySources() profile.Sources {
	return profile.Sources{
		Film: profile.FilmSource{
			Status:    profile.StatusSuccess,
			Favorites: []string{"Stalker"},
			Genres:    []string{"Drama", "Science Fiction"},
			RecentRatings: []profile.FilmRating{
				{Title: "Stalker", Rating: 5, Year: 1979},
			},
		},
		Music: profile.MusicNotProvided(),
	}
}

func TestSynthesize_TwoPasses(t *testing.T) {
	stub := &stubCompleter{replies: []string{"A thoughtful read.", goodPersonaJSON}}
	s := NewSynthesizer(stub, "test-model")

	p, err := s.Synthesize(context.Background(), "Will", "I love slow cinema.", filmOnlySources())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(stub.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(stub.calls))
	}
	if stub.schemas[0] != nil {
		t.Error("insight pass should not be schema-constrained")
	}
	if stub.schemas[1] == nil {
		t.Error("persona pass should be schema-constrained")
	}
	if p.Style == "" || p.PersonalityInsight == "" {
		t.Errorf("persona incomplete: %+v", p)
	}
}

func TestSynthesize_PersonaPromptCarriesInsight(t *testing.T) {
	stub := &stubCompleter{replies: []string{"A thoughtful read.", goodPersonaJSON}}
	s := NewSynthesizer(stub, "test-model")

	if _, err := s.Synthesize(context.Background(), "Will", "bio", filmOnlySources()); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	user := stub.calls[1][1].Content
	if !strings.Contains(user, "A thoughtful read.") {
		t.Error("persona prompt does not carry the insight")
	}
	if !strings.Contains(user, "Stalker") {
		t.Error("persona prompt does not carry film evidence")
	}
}

func TestSynthesize_AbsentSourcesStated(t *testing.T) {
	stub := &stubCompleter{replies: []string{"read", goodPersonaJSON}}
	s := NewSynthesizer(stub, "test-model")

	sources := profile.Sources{
		Film:  profile.FilmError("could not load Letterboxd ratings: feed returned status 404"),
		Music: profile.MusicNotProvided(),
	}
	if _, err := s.Synthesize(context.Background(), "Will", "bio", sources); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	user := stub.calls[0][1].Content
	if strings.Count(user, "no data available") != 2 {
		t.Errorf("expected both sources marked unavailable, prompt:\n%s", user)
	}
}

func TestSynthesize_EmptyInsightFails(t *testing.T) {
	stub := &stubCompleter{replies: []string{"   "}}
	s := NewSynthesizer(stub, "test-model")

	_, err := s.Synthesize(context.Background(), "Will", "bio", filmOnlySources())
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("err = %v, want ErrGeneration", err)
	}
	if len(stub.calls) != 1 {
		t.Errorf("calls = %d, want 1 (no second pass after failed insight)", len(stub.calls))
	}
}

func TestSynthesize_MalformedJSON(t *testing.T) {
	stub := &stubCompleter{replies: []string{"read", "not json at all"}}
	s := NewSynthesizer(stub, "test-model")

	_, err := s.Synthesize(context.Background(), "Will", "bio", filmOnlySources())
	if !errors.Is(err, ErrMalformedPersona) {
		t.Errorf("err = %v, want ErrMalformedPersona", err)
	}
}

func TestSynthesize_MissingFieldFails(t *testing.T) {
	partial := `{"interests": ["x"], "style": "", "traits": ["y"], "personality_insight": "z"}`
	stub := &stubCompleter{replies: []string{"read", partial}}
	s := NewSynthesizer(stub, "test-model")

	_, err := s.Synthesize(context.Background(), "Will", "bio", filmOnlySources())
	if !errors.Is(err, ErrMalformedPersona) {
		t.Errorf("err = %v, want ErrMalformedPersona", err)
	}
}

func TestSynthesize_FencedJSONAccepted(t *testing.T) {
	fenced := "```json\n" + goodPersonaJSON + "\n```"
	stub := &stubCompleter{replies: []string{"read", fenced}}
	s := NewSynthesizer(stub, "test-model")

	p, err := s.Synthesize(context.Background(), "Will", "bio", filmOnlySources())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(p.Interests) != 2 {
		t.Errorf("Interests = %v", p.Interests)
	}
}

func TestSynthesize_UpstreamErrorWrapped(t *testing.T) {
	stub := &stubCompleter{
		replies: []string{"read"},
		errs:    []error{nil, errors.New("upstream error: overloaded")},
	}
	s := NewSynthesizer(stub, "test-model")

	_, err := s.Synthesize(context.Background(), "Will", "bio", filmOnlySources())
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("err = %v, want ErrGeneration", err)
	}
}
