package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wpulier/twin/internal/llm"
	"github.com/wpulier/twin/internal/profile"
)

var (
	// ErrGeneration means the model produced no usable output.
	ErrGeneration = errors.New("persona generation failed")

	// ErrMalformedPersona means the model output parsed but did not carry
	// every persona field. A twin is never saved with a partial persona.
	ErrMalformedPersona = errors.New("malformed persona output")
)

// Completer is the slice of the LLM client the synthesizer needs.
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.Message, schemaName string, jsonSchema *llm.Schema) (string, error)
}

// Synthesizer turns a bio and gathered profile sources into a Persona via
// two model calls: a free-text personality read, then a schema-constrained
// persona built from that read.
type Synthesizer struct {
	llm    Completer
	model  string
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer using the given model.
func NewSynthesizer(client Completer, model string) *Synthesizer {
	return &Synthesizer{llm: client, model: model, logger: slog.Default()}
}

// Insight runs the first pass and returns the free-text personality read.
func (s *Synthesizer) Insight(ctx context.Context, bio string, sources profile.Sources) (string, error) {
	out, err := s.llm.Complete(ctx, s.model, BuildInsightPrompt(bio, sources), "", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty insight completion", ErrGeneration)
	}
	return out, nil
}

// Synthesize runs both passes and returns a complete Persona. Any failure
// surfaces as an error; a fabricated or partial persona is never returned.
func (s *Synthesizer) Synthesize(ctx context.Context, name, bio string, sources profile.Sources) (Persona, error) {
	insight, err := s.Insight(ctx, bio, sources)
	if err != nil {
		return Persona{}, err
	}
	s.logger.Debug("insight generated", "twin", name, "length", len(insight))

	out, err := s.llm.Complete(ctx, s.model, BuildPersonaPrompt(name, bio, sources, insight), "persona", personaSchema())
	if err != nil {
		return Persona{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	var p Persona
	if err := json.Unmarshal([]byte(stripFences(out)), &p); err != nil {
		return Persona{}, fmt.Errorf("%w: %v", ErrMalformedPersona, err)
	}
	if err := validate(p); err != nil {
		return Persona{}, err
	}
	return p, nil
}

func validate(p Persona) error {
	switch {
	case len(p.Interests) == 0:
		return fmt.Errorf("%w: no interests", ErrMalformedPersona)
	case strings.TrimSpace(p.Style) == "":
		return fmt.Errorf("%w: missing style", ErrMalformedPersona)
	case len(p.Traits) == 0:
		return fmt.Errorf("%w: no traits", ErrMalformedPersona)
	case strings.TrimSpace(p.PersonalityInsight) == "":
		return fmt.Errorf("%w: missing personality insight", ErrMalformedPersona)
	}
	return nil
}

// stripFences removes a markdown code fence some models wrap JSON in even
// when a schema-constrained response was requested.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
