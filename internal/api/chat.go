package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wpulier/twin/internal/persona"
	"github.com/wpulier/twin/internal/storage"
)

type chatRequest struct {
	Message string `json:"message"`
}

type turnResponse struct {
	Seq       int64  `json:"seq"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func toTurnResponse(t storage.Turn) turnResponse {
	return turnResponse{
		Seq:       t.Seq,
		Speaker:   t.Speaker,
		Text:      t.Text,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

// handleChat streams a twin reply. The response body is one JSON control
// line (the persisted user turn) terminated by a newline, followed by raw
// reply text flushed fragment by fragment. The twin turn is persisted after
// the stream ends; an interrupted reply is kept only if at least one
// fragment reached the client.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		twin, ok := loadTwin(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if twin.PersonaJSON == "" {
			httpError(w, http.StatusConflict, "invalid_request_error", "twin has no persona yet")
			return
		}

		var p persona.Persona
		if err := json.Unmarshal([]byte(twin.PersonaJSON), &p); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "stored persona is unreadable: %v", err)
			return
		}

		flusher, okF := w.(http.Flusher)
		if !okF {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		// History is read before the new message is appended so the reply
		// is conditioned on turns that preceded it.
		history, err := deps.Store.RecentTurns(twin.ID, deps.ContextTurns)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history: %v", err)
			return
		}

		reply, err := deps.Replier.Reply(r.Context(), twin.Name, p, history, req.Message)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to open reply: %v", err)
			return
		}
		defer reply.Close()

		userTurn, err := deps.Store.AppendTurn(twin.ID, storage.SpeakerUser, req.Message)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save message: %v", err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")

		control, _ := json.Marshal(toTurnResponse(userTurn))
		w.Write(control)
		w.Write([]byte("\n"))
		flusher.Flush()

		var streamErr error
		for {
			frag, err := reply.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				streamErr = err
				break
			}
			io.WriteString(w, frag)
			flusher.Flush()
		}

		if streamErr != nil {
			deps.Logger.Warn("reply interrupted", "twin", twin.ID, "error", streamErr, "partial_bytes", len(reply.Text()))
			if !reply.Received() {
				return
			}
		}

		if _, err := deps.Store.AppendTurn(twin.ID, storage.SpeakerTwin, reply.Text()); err != nil {
			deps.Logger.Error("failed to save reply", "twin", twin.ID, "error", err)
		}
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		twin, ok := loadTwin(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		var turns []storage.Turn
		var err error
		if limit := parseIntParam(r, "limit", 0, 1000); limit > 0 {
			turns, err = deps.Store.RecentTurns(twin.ID, limit)
		} else {
			turns, err = deps.Store.ListTurns(twin.ID)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}

		out := make([]turnResponse, len(turns))
		for i, t := range turns {
			out[i] = toTurnResponse(t)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
