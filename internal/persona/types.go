package persona

// Persona is the synthesized character profile that drives twin replies.
// It is created whole by Synthesize and replaced whole on every
// re-synthesis; there are no partial-field updates.
type Persona struct {
	Interests          []string `json:"interests"`
	Style              string   `json:"style"`
	Traits             []string `json:"traits"`
	PersonalityInsight string   `json:"personality_insight"`
}
