package httpapi

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/docpanel/docpanel/config"
	"github.com/docpanel/docpanel/discussion"
	"github.com/docpanel/docpanel/document"
	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/message"
	"github.com/docpanel/docpanel/pkg/logging"
	"github.com/docpanel/docpanel/session"
	"github.com/docpanel/docpanel/tokens"
)

// Server exposes the discussion engine over a JSON HTTP API.
type Server struct {
	cfg        config.Config
	templates  config.TemplateCatalog
	docs       *document.Registry
	sessions   *session.Manager
	orch       *discussion.Orchestrator
	summarizer *discussion.Summarizer
	tracker    *tokens.Tracker
	logger     *slog.Logger
	limiter    *rateLimiter
	startTime  time.Time

	// One discussion round per session at a time; a second prompt while a
	// round is in flight gets a conflict, not a queue.
	roundMu sync.Mutex
	rounds  map[string]*sync.Mutex
}

// NewServer wires the API over its collaborators.
func NewServer(
	cfg config.Config,
	templates config.TemplateCatalog,
	docs *document.Registry,
	sessions *session.Manager,
	orch *discussion.Orchestrator,
	summarizer *discussion.Summarizer,
	tracker *tokens.Tracker,
) *Server {
	return &Server{
		cfg:        cfg,
		templates:  templates,
		docs:       docs,
		sessions:   sessions,
		orch:       orch,
		summarizer: summarizer,
		tracker:    tracker,
		logger:     logging.WithComponent("httpapi"),
		limiter:    newRateLimiter(cfg.Server.RatePerMinute),
		startTime:  time.Now(),
		rounds:     make(map[string]*sync.Mutex),
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/prompt", s.handlePrompt)
	mux.HandleFunc("GET /sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /sessions/{id}/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /sessions/{id}/revert", s.handleRevert)
	mux.HandleFunc("POST /sessions/{id}/actionable-summary", s.handleSummary)
	mux.HandleFunc("POST /sessions/{id}/export", s.handleExport)
	mux.HandleFunc("GET /sessions/{id}/tokens", s.handleSessionTokens)
	mux.HandleFunc("GET /tokens/summary", s.handleTotalTokens)
	mux.HandleFunc("POST /tokens/export", s.handleTokensExport)
	mux.HandleFunc("POST /logs", s.handleWriteLogs)
	mux.HandleFunc("GET /agent-templates", s.handleTemplates)
	mux.HandleFunc("POST /sessions/from-template", s.handleCreateFromTemplate)

	return s.withLogging(s.withRateLimit(withNoCache(mux)))
}

// ListenAndServe runs the API on the configured address.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info("starting server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":      s.cfg.App.Version,
		"timestamp":    time.Now().Format(time.RFC3339),
		"cache_buster": fmt.Sprintf("v%d", s.startTime.Unix()),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.Limits.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}
	if int64(len(data)) > s.cfg.Limits.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.Limits.MaxUploadBytes/(1024*1024)))
		return
	}

	ref, err := s.docs.StoreUpload(r.Context(), s.cfg.Server.UploadDir, header.Filename, data, s.cfg.Limits.MaxUploadBytes)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	s.logger.Info("document uploaded", "document_id", ref.ID, "filename", ref.Filename, "size", len(data))
	writeJSON(w, http.StatusOK, map[string]string{
		"document_id": ref.ID,
		"filename":    ref.Filename,
	})
}

type createSessionRequest struct {
	DocumentIDs []string             `json:"document_ids"`
	TeamMembers []session.TeamMember `json:"team_members"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validateTeam(req.DocumentIDs, req.TeamMembers); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	refs, err := s.docs.Resolve(r.Context(), req.DocumentIDs)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.DocumentIDs, req.TeamMembers)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":         sess.ID,
		"document_filenames": filenames(refs),
		"conversation":       conversation(sess),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	names := make([]string, 0, len(sess.DocumentIDs))
	for _, id := range sess.DocumentIDs {
		ref, err := s.docs.Get(r.Context(), id)
		if err != nil {
			names = append(names, "Unknown")
			continue
		}
		names = append(names, ref.Filename)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":         sess.ID,
		"document_ids":       sess.DocumentIDs,
		"document_filenames": names,
		"team_members":       sess.Members,
		"conversation":       conversation(sess),
		"created_at":         sess.CreatedAt,
	})
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := config.NewValidator().
		RequireNonEmpty("prompt", req.Prompt).
		ValidateMaxLength("prompt", req.Prompt, s.cfg.Limits.MaxPromptLength).
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

	batch := s.runRound(r.Context(), sess, refs, req.Prompt)
	sess.Log.Append(message.NewUserTurn(req.Prompt))
	sess.Log.Append(batch...)
	s.persist(r.Context(), sess)

	writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation(sess)})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
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

	batch, err := s.orch.Regenerate(r.Context(), sess, refs)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	sess.Log.Append(batch...)
	s.persist(r.Context(), sess)

	writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation(sess)})
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
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

	if err := sess.Log.TruncateBeforeLastUser(); err != nil {
		writeErrorFrom(w, err)
		return
	}
	s.persist(r.Context(), sess)

	writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation(sess)})
}

type summaryRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Model == "" {
		req.Model = "nova-pro"
	}

	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	refs, err := s.docs.Resolve(r.Context(), sess.DocumentIDs)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	markdown, err := s.summarizer.Generate(r.Context(), sess, refs, req.Model)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"summary":  markdown,
		"filename": fmt.Sprintf("actionable_summary_%s.md", shortID(sess.ID)),
	})
}

type exportRequest struct {
	Format          string `json:"format"`
	IncludeMetadata *bool  `json:"include_metadata"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Format != "markdown" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", req.Format))
		return
	}
	includeMetadata := req.IncludeMetadata == nil || *req.IncludeMetadata

	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	names := make([]string, 0, len(sess.DocumentIDs))
	for _, id := range sess.DocumentIDs {
		if ref, err := s.docs.Get(r.Context(), id); err == nil {
			names = append(names, ref.Filename)
		} else {
			names = append(names, "Unknown")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"content":    MarkdownExport(sess, names, includeMetadata),
		"filename":   fmt.Sprintf("conversation_%s.md", shortID(sess.ID)),
		"media_type": "text/markdown",
	})
}

func (s *Server) handleSessionTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.SessionSummary(r.PathValue("id")))
}

func (s *Server) handleTotalTokens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.TotalSummary())
}

func (s *Server) handleTokensExport(w http.ResponseWriter, _ *http.Request) {
	path, err := s.tracker.ExportJSON("")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Token data exported successfully",
		"filepath":  path,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	if s.templates.Count() == 0 {
		writeError(w, http.StatusNotFound, "Agent templates not found")
		return
	}
	writeJSON(w, http.StatusOK, s.templates)
}

type createFromTemplateRequest struct {
	TemplateIDs   []string `json:"template_ids"`
	DocumentIDs   []string `json:"document_ids"`
	InitialPrompt string   `json:"initial_prompt"`
}

func (s *Server) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req createFromTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := config.NewValidator().
		ValidateRange("template_ids", len(req.TemplateIDs), 1, s.cfg.Limits.MaxTeamSize).
		ValidateRange("document_ids", len(req.DocumentIDs), 1, s.cfg.Limits.MaxDocuments).
		RequireNonEmpty("initial_prompt", req.InitialPrompt).
		ValidateMaxLength("initial_prompt", req.InitialPrompt, s.cfg.Limits.MaxPromptLength).
		Err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	members := make([]session.TeamMember, 0, len(req.TemplateIDs))
	templatePrompts := make(map[string]string, len(req.TemplateIDs))
	templatesUsed := make([]string, 0, len(req.TemplateIDs))
	for i, tplID := range req.TemplateIDs {
		tpl, ok := s.templates.Lookup(tplID)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Template not found: %s", tplID))
			return
		}
		member := session.TeamMember{
			ID:    fmt.Sprintf("template_%s_%d", tplID, i),
			Name:  tpl.Name,
			Role:  tpl.Role,
			Model: tpl.Model,
		}
		members = append(members, member)
		templatePrompts[member.ID] = tpl.SystemPrompt
		templatesUsed = append(templatesUsed, tpl.Name)
	}

	refs, err := s.docs.Resolve(r.Context(), req.DocumentIDs)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.DocumentIDs, members)
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

	batch, err := s.orch.RunWithTemplates(r.Context(), sess, refs, req.InitialPrompt, templatePrompts)
	if err != nil {
		batch = []*message.Turn{message.NewSystemTurn(fmt.Sprintf("Error running discussion round: %v", err))}
	}
	sess.Log.Append(message.NewUserTurn(req.InitialPrompt))
	sess.Log.Append(batch...)
	s.persist(r.Context(), sess)

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":         sess.ID,
		"document_filenames": filenames(refs),
		"conversation":       conversation(sess),
		"templates_used":     templatesUsed,
	})
}

// runRound executes a discussion round, degrading a whole-round failure into
// a single system turn so the conversation records what happened.
func (s *Server) runRound(ctx context.Context, sess *session.Session, refs []document.Ref, prompt string) []*message.Turn {
	batch, err := s.orch.Run(ctx, sess, refs, prompt)
	if err != nil {
		s.logger.Error("discussion round failed", "session_id", sess.ID, "error", err)
		return []*message.Turn{message.NewSystemTurn(fmt.Sprintf("Error running discussion round: %v", err))}
	}
	return batch
}

// lockRound acquires the per-session round lock without blocking.
func (s *Server) lockRound(sessionID string) (func(), error) {
	s.roundMu.Lock()
	mu, ok := s.rounds[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.rounds[sessionID] = mu
	}
	s.roundMu.Unlock()

	if !mu.TryLock() {
		return nil, fmt.Errorf("session %s: %w", sessionID, errors.ErrRoundInFlight)
	}
	return mu.Unlock, nil
}

func (s *Server) persist(ctx context.Context, sess *session.Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("failed to persist session", "session_id", sess.ID, "error", err)
	}
}

func (s *Server) validateTeam(documentIDs []string, members []session.TeamMember) error {
	v := config.NewValidator().
		ValidateRange("document_ids", len(documentIDs), 1, s.cfg.Limits.MaxDocuments).
		ValidateRange("team_members", len(members), 1, s.cfg.Limits.MaxTeamSize)
	if err := v.Err(); err != nil {
		return err
	}

	seenDocs := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		if seenDocs[id] {
			return fmt.Errorf("%w: document IDs must be unique", errors.ErrInvalidInput)
		}
		seenDocs[id] = true
	}
	seenMembers := make(map[string]bool, len(members))
	for _, member := range members {
		if member.ID == "" || member.Name == "" || member.Role == "" {
			return fmt.Errorf("%w: team members require id, name and role", errors.ErrInvalidInput)
		}
		if seenMembers[member.ID] {
			return fmt.Errorf("%w: team member IDs must be unique", errors.ErrInvalidInput)
		}
		seenMembers[member.ID] = true
	}
	return nil
}

// conversation snapshots the log, never as JSON null.
func conversation(sess *session.Session) []*message.Turn {
	turns := sess.Log.Turns()
	if turns == nil {
		turns = []*message.Turn{}
	}
	return turns
}

func filenames(refs []document.Ref) []string {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Filename)
	}
	return names
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// decodeJSON parses an optional JSON body; an empty body leaves v zeroed so
// request types with defaults work without a payload.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !goerrors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeErrorFrom maps domain sentinels onto HTTP statuses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case goerrors.Is(err, errors.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case goerrors.Is(err, errors.ErrInvalidInput),
		goerrors.Is(err, errors.ErrNoUserTurn),
		goerrors.Is(err, errors.ErrTooShortToRevert):
		writeError(w, http.StatusBadRequest, err.Error())
	case goerrors.Is(err, errors.ErrRoundInFlight):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
