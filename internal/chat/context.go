package chat

import (
	"strings"

	"github.com/wpulier/twin/internal/storage"
)

// SelectContext renders the most recent maxTurns turns as a transcript
// block for the prompt, oldest first. Turns are labeled by speaker so the
// model can tell its own prior replies from the user's. An empty result
// means the conversation has no history yet.
func SelectContext(turns []storage.Turn, twinName string, maxTurns int) string {
	if maxTurns <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	var b strings.Builder
	for _, t := range turns {
		switch t.Speaker {
		case storage.SpeakerTwin:
			b.WriteString(twinName)
			b.WriteString(": ")
		default:
			b.WriteString("You: ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}
