package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Stream yields content fragments from an SSE chat completion response.
// Recv returns fragments strictly in arrival order and io.EOF after the
// upstream [DONE] sentinel. An underlying failure before [DONE] is
// returned as an error, never silently collapsed into a clean end.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	// Allow oversized SSE lines; default 64KB can truncate long deltas.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: sc}
}

// streamChunk is one SSE data payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// Recv returns the next non-empty content fragment. It returns io.EOF on
// natural end of stream, and any other error if the stream is interrupted.
func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			// Blank keep-alives and SSE comments.
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("upstream stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
		// Empty delta with a finish reason precedes [DONE]; keep reading.
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}
	// Connection ended without [DONE]: the reply may be truncated.
	return "", fmt.Errorf("stream ended before completion signal")
}

// Close releases the underlying response body, cancelling the upstream call.
func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}
