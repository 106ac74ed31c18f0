package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/wpulier/twin/internal/llm"
	"github.com/wpulier/twin/internal/persona"
	"github.com/wpulier/twin/internal/storage"
)

// fakeStream replays fragments and then a terminal error.
type fakeStream struct {
	fragments []string
	final     error
	pos       int
	closed    bool
}

func (f *fakeStream) Recv() (string, error) {
	if f.pos < len(f.fragments) {
		frag := f.fragments[f.pos]
		f.pos++
		return frag, nil
	}
	if f.final != nil {
		return "", f.final
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeStreamer struct {
	stream   *fakeStream
	openErr  error
	messages []llm.Message
}

func (f *fakeStreamer) Stream(ctx context.Context, model string, messages []llm.Message) (FragmentStream, error) {
	f.messages = messages
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func testPersona() persona.Persona {
	return persona.Persona{
		Interests:          []string{"slow cinema"},
		Style:              "Dry and concise.",
		Traits:             []string{"introspective"},
		PersonalityInsight: "You think in images.",
	}
}

func drain(t *testing.T, r *Reply) ([]string, error) {
	t.Helper()
	var got []string
	for {
		frag, err := r.Recv()
		if err == io.EOF {
			return got, nil
		}
		if err != nil {
			return got, err
		}
		got = append(got, frag)
	}
}

func TestReply_FragmentsAccumulate(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{fragments: []string{"Hel", "lo", " there"}}}
	e := NewEngine(streamer, "test-model", 5)

	r, err := e.Reply(context.Background(), "Will", testPersona(), nil, "hi")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	defer r.Close()

	got, err := drain(t, r)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("fragments = %v", got)
	}
	if r.Text() != "Hello there" {
		t.Errorf("Text() = %q, want %q", r.Text(), "Hello there")
	}
	if !r.Received() {
		t.Error("Received() = false")
	}
}

func TestReply_InterruptedMidStream(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{
		fragments: []string{"partial"},
		final:     errors.New("stream ended before completion signal"),
	}}
	e := NewEngine(streamer, "test-model", 5)

	r, err := e.Reply(context.Background(), "Will", testPersona(), nil, "hi")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	defer r.Close()

	_, err = drain(t, r)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if r.Text() != "partial" {
		t.Errorf("Text() = %q, want fragments delivered before the break", r.Text())
	}
	if !r.Received() {
		t.Error("Received() = false after a delivered fragment")
	}

	// The reply is finished; further reads must not touch the stream.
	if _, err := r.Recv(); err != io.EOF {
		t.Errorf("Recv after failure = %v, want io.EOF", err)
	}
}

func TestReply_OpenFailure(t *testing.T) {
	streamer := &fakeStreamer{openErr: errors.New("unexpected status 500")}
	e := NewEngine(streamer, "test-model", 5)

	if _, err := e.Reply(context.Background(), "Will", testPersona(), nil, "hi"); err == nil {
		t.Fatal("expected error when the stream cannot be opened")
	}
}

func TestReply_CloseStopsUpstream(t *testing.T) {
	stream := &fakeStream{fragments: []string{"a", "b", "c"}}
	streamer := &fakeStreamer{stream: stream}
	e := NewEngine(streamer, "test-model", 5)

	r, err := e.Reply(context.Background(), "Will", testPersona(), nil, "hi")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	if _, err := r.Recv(); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !stream.closed {
		t.Error("upstream stream not closed")
	}
	if _, err := r.Recv(); err != io.EOF {
		t.Errorf("Recv after Close = %v, want io.EOF", err)
	}
}

func TestReply_PromptCarriesPersonaAndHistory(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{fragments: []string{"ok"}}}
	e := NewEngine(streamer, "test-model", 2)

	history := []storage.Turn{
		{Speaker: storage.SpeakerUser, Text: "old question"},
		{Speaker: storage.SpeakerUser, Text: "what did you watch?"},
		{Speaker: storage.SpeakerTwin, Text: "Stalker, again."},
	}
	r, err := e.Reply(context.Background(), "Will", testPersona(), history, "worth it?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	defer r.Close()

	system := streamer.messages[0].Content
	if !strings.Contains(system, "Dry and concise.") {
		t.Error("system prompt missing persona style")
	}
	if !strings.Contains(system, "You are Will") {
		t.Error("system prompt missing twin name")
	}

	user := streamer.messages[1].Content
	if !strings.Contains(user, "Will: Stalker, again.") {
		t.Error("user prompt missing twin turn from history")
	}
	if strings.Contains(user, "old question") {
		t.Error("history not bounded to the most recent turns")
	}
	if !strings.Contains(user, "worth it?") {
		t.Error("user prompt missing the new message")
	}
}

func TestSelectContext(t *testing.T) {
	turns := []storage.Turn{
		{Speaker: storage.SpeakerUser, Text: "one"},
		{Speaker: storage.SpeakerTwin, Text: "two"},
		{Speaker: storage.SpeakerUser, Text: "three"},
	}

	got := SelectContext(turns, "Will", 2)
	want := "Will: two\nYou: three\n"
	if got != want {
		t.Errorf("SelectContext = %q, want %q", got, want)
	}

	if SelectContext(nil, "Will", 5) != "" {
		t.Error("empty history should yield empty context")
	}
	if SelectContext(turns, "Will", 0) != "" {
		t.Error("zero budget should yield empty context")
	}
}
