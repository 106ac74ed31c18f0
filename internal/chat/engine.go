package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wpulier/twin/internal/llm"
	"github.com/wpulier/twin/internal/persona"
	"github.com/wpulier/twin/internal/storage"
)

// ErrInterrupted marks a stream that broke after delivery started. The
// fragments received before the break are still valid; callers decide
// whether the partial reply is worth keeping.
var ErrInterrupted = errors.New("reply interrupted mid-stream")

// FragmentStream is the slice of the LLM stream the engine consumes.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// Streamer opens streaming completions.
type Streamer interface {
	Stream(ctx context.Context, model string, messages []llm.Message) (FragmentStream, error)
}

// LLMStreamer adapts *llm.Client to the Streamer interface.
type LLMStreamer struct {
	Client *llm.Client
}

func (s LLMStreamer) Stream(ctx context.Context, model string, messages []llm.Message) (FragmentStream, error) {
	return s.Client.Stream(ctx, model, messages)
}

// Engine produces persona-conditioned streaming replies. It performs no
// retries: once fragments have been handed to the caller, a retried call
// could duplicate or reorder text the caller already forwarded.
type Engine struct {
	llm          Streamer
	model        string
	contextTurns int
}

// NewEngine creates an Engine. contextTurns bounds how much history each
// reply is conditioned on.
func NewEngine(client Streamer, model string, contextTurns int) *Engine {
	return &Engine{llm: client, model: model, contextTurns: contextTurns}
}

// Reply opens a streaming reply to message, conditioned on the twin's
// persona and the recent turns. The caller drains it with Recv and must
// Close it when done.
func (e *Engine) Reply(ctx context.Context, twinName string, p persona.Persona, history []storage.Turn, message string) (*Reply, error) {
	messages := []llm.Message{
		{Role: "system", Content: buildSystemPrompt(twinName, p)},
		{Role: "user", Content: buildUserPrompt(twinName, history, message, e.contextTurns)},
	}

	stream, err := e.llm.Stream(ctx, e.model, messages)
	if err != nil {
		return nil, fmt.Errorf("opening reply stream: %w", err)
	}
	return &Reply{stream: stream}, nil
}

// Reply is one in-flight streaming answer. Fragments arrive in order;
// Text accumulates exactly the bytes handed out by Recv.
type Reply struct {
	stream   FragmentStream
	text     strings.Builder
	received bool
	finished bool
}

// Recv returns the next fragment. It returns io.EOF when the reply is
// complete, and an error wrapping ErrInterrupted if the stream breaks
// after at least the opening succeeded.
func (r *Reply) Recv() (string, error) {
	if r.finished {
		return "", io.EOF
	}

	frag, err := r.stream.Recv()
	if err != nil {
		r.finished = true
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("%w: %v", ErrInterrupted, err)
	}

	r.received = true
	r.text.WriteString(frag)
	return frag, nil
}

// Text returns the reply accumulated so far.
func (r *Reply) Text() string {
	return r.text.String()
}

// Received reports whether at least one fragment was delivered.
func (r *Reply) Received() bool {
	return r.received
}

// Close abandons the reply and cancels the upstream call.
func (r *Reply) Close() error {
	r.finished = true
	return r.stream.Close()
}

func buildSystemPrompt(twinName string, p persona.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, talking in first person as yourself. Stay in character for the whole conversation.\n\n", twinName)
	fmt.Fprintf(&b, "How you speak: %s\n", p.Style)
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "Your temperament: %s.\n", strings.Join(p.Traits, ", "))
	}
	if len(p.Interests) > 0 {
		fmt.Fprintf(&b, "Things you genuinely care about: %s.\n", strings.Join(p.Interests, ", "))
	}
	fmt.Fprintf(&b, "\nWho you are: %s\n", p.PersonalityInsight)
	b.WriteString("\nAnswer as yourself in conversation. Do not mention that you are a persona or an AI.")
	return b.String()
}

func buildUserPrompt(twinName string, history []storage.Turn, message string, contextTurns int) string {
	transcript := SelectContext(history, twinName, contextTurns)
	if transcript == "" {
		return message
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(transcript)
	b.WriteString("\nYou: ")
	b.WriteString(message)
	return b.String()
}
