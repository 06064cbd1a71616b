package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/docpanel/docpanel/config"
	"github.com/docpanel/docpanel/discussion"
	"github.com/docpanel/docpanel/message"
)

// handleStream runs a discussion round member by member and pushes progress
// over Server-Sent Events. The prompt arrives as a query parameter because
// EventSource can only issue GETs.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	prompt := r.URL.Query().Get("prompt")
	if err := config.NewValidator().
		RequireNonEmpty("prompt", prompt).
		ValidateMaxLength("prompt", prompt, s.cfg.Limits.MaxPromptLength).
		Err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	unlock, err := s.lockRound(sess.ID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	defer unlock()

	refs, err := s.docs.Resolve(r.Context(), sess.DocumentIDs)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(payload map[string]any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	userTurn := message.NewUserTurn(prompt)
	sess.Log.Append(userTurn)
	send(map[string]any{"event": "user_message", "data": userTurn})

	batch, runErr := s.orch.RunSequential(r.Context(), sess, refs, prompt, func(ev discussion.RoundEvent) {
		payload := map[string]any{"event": ev.Name}
		if ev.Turn != nil {
			payload["data"] = ev.Turn
		} else {
			payload["agent"] = ev.Agent
		}
		send(payload)
	})
	sess.Log.Append(batch...)
	s.persist(r.Context(), sess)

	if runErr != nil {
		send(map[string]any{"error": runErr.Error()})
		return
	}
	send(map[string]any{"event": "complete"})
}

type logsRequest struct {
	Source string `json:"source"`
	Logs   string `json:"logs"`
}

// handleWriteLogs appends frontend log lines to a per-source file so browser
// errors end up next to the server's own logs.
func (s *Server) handleWriteLogs(w http.ResponseWriter, r *http.Request) {
	var req logsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := config.NewValidator().RequireNonEmpty("source", req.Source).Err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := os.MkdirAll(s.cfg.Server.LogDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Base strips any path components a hostile source name could smuggle in.
	path := filepath.Join(s.cfg.Server.LogDir, filepath.Base(req.Source)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	if _, err := f.WriteString(req.Logs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}
