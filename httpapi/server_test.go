package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docpanel/docpanel/config"
	"github.com/docpanel/docpanel/discussion"
	"github.com/docpanel/docpanel/document"
	"github.com/docpanel/docpanel/provider"
	"github.com/docpanel/docpanel/session"
	"github.com/docpanel/docpanel/session/store"
	"github.com/docpanel/docpanel/tokens"
)

func testCatalog() config.TemplateCatalog {
	return config.TemplateCatalog{
		Categories: map[string]config.TemplateCategory{
			"engineering": {
				Name: "Engineering",
				Templates: []config.ReviewerTemplate{
					{
						ID:           "security-review",
						Name:         "Security Reviewer",
						Role:         "Security and Compliance",
						Model:        "nova-lite",
						SystemPrompt: "You are a security reviewer.",
					},
				},
			},
		},
	}
}

func newTestServer(t *testing.T, client provider.Client) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Server.UploadDir = t.TempDir()
	cfg.Server.RatePerMinute = 0

	invoker := discussion.NewInvoker(client,
		discussion.WithBackoffIntervals(time.Millisecond, 2*time.Millisecond))
	factory := discussion.NewFactory(cfg.Models)

	return NewServer(
		cfg,
		testCatalog(),
		document.NewRegistry(),
		session.NewManager(session.WithStore(store.NewInMemoryStore())),
		discussion.NewOrchestrator(invoker, factory),
		discussion.NewSummarizer(invoker, factory, cfg.Limits.SummaryMinItems, cfg.Limits.SummaryMaxItems),
		tokens.NewTracker(),
	)
}

func scriptedClient(reply string) provider.Client {
	return provider.Func(func(_ context.Context, _ provider.Request) (string, error) {
		return reply, nil
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return body
}

func uploadDocument(t *testing.T, handler http.Handler, filename, content string) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed with %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)["document_id"].(string)
}

func createSession(t *testing.T, handler http.Handler, docID string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/sessions", map[string]any{
		"document_ids": []string{docID},
		"team_members": []map[string]any{
			{"id": "m1", "name": "Security Reviewer", "role": "Security", "model": "nova-lite"},
			{"id": "m2", "name": "UX Reviewer", "role": "User Experience", "model": "nova-lite"},
			{"id": "m3", "name": "Team Moderator", "role": "Moderator", "model": "nova-pro", "moderator": true},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create session failed with %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)["session_id"].(string)
}

func TestHealthAndVersion(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()

	if rec := doJSON(t, handler, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz returned %d", rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("version returned %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["version"] != "1.0.0" {
		t.Errorf("unexpected version: %v", body["version"])
	}
	if body["cache_buster"] == "" {
		t.Error("cache_buster missing")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "binary.exe")
	part.Write([]byte("payload"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported type, got %d", rec.Code)
	}
}

func TestPromptRoundTrip(t *testing.T) {
	handler := newTestServer(t, scriptedClient("solid feedback")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{
		"prompt": "please review the plan",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("prompt failed with %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	conversation := body["conversation"].([]any)
	if len(conversation) != 4 {
		t.Fatalf("expected 4 turns (user + 3 agents), got %d", len(conversation))
	}

	first := conversation[0].(map[string]any)
	if first["type"] != "user" || first["content"] != "please review the plan" {
		t.Errorf("first turn should be the user prompt: %v", first)
	}
	last := conversation[len(conversation)-1].(map[string]any)
	if last["agent_name"] != "Team Moderator" {
		t.Errorf("moderator should be last, got %v", last["agent_name"])
	}
}

func TestPromptValidation(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	if rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{"prompt": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty prompt should be 400, got %d", rec.Code)
	}
	long := strings.Repeat("x", 2001)
	if rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{"prompt": long}); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized prompt should be 400, got %d", rec.Code)
	}
}

func TestPromptUnknownSession(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()
	rec := doJSON(t, handler, http.MethodPost, "/sessions/no-such/prompt", map[string]string{"prompt": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")

	rec := doJSON(t, handler, http.MethodPost, "/sessions", map[string]any{
		"document_ids": []string{docID},
		"team_members": []map[string]any{
			{"id": "m1", "name": "A", "role": "a", "model": "nova-lite"},
			{"id": "m1", "name": "B", "role": "b", "model": "nova-lite"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate member ids should be 400, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/sessions", map[string]any{
		"document_ids": []string{"ghost"},
		"team_members": []map[string]any{
			{"id": "m1", "name": "A", "role": "a", "model": "nova-lite"},
		},
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown document should be 404, got %d", rec.Code)
	}
}

func TestRegenerateAndRevert(t *testing.T) {
	handler := newTestServer(t, scriptedClient("feedback")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{"prompt": "first"})

	rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/regenerate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("regenerate failed with %d: %s", rec.Code, rec.Body.String())
	}
	conversation := decodeBody(t, rec)["conversation"].([]any)
	if len(conversation) != 4 {
		t.Errorf("regenerate should replace the batch, got %d turns", len(conversation))
	}

	rec = doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/revert", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revert failed with %d: %s", rec.Code, rec.Body.String())
	}
	conversation = decodeBody(t, rec)["conversation"].([]any)
	if len(conversation) != 0 {
		t.Errorf("revert should drop the last user turn and its batch, got %d turns", len(conversation))
	}

	if rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/revert", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("revert on short conversation should be 400, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/regenerate", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("regenerate without user turn should be 400, got %d", rec.Code)
	}
}

func TestActionableSummary(t *testing.T) {
	handler := newTestServer(t, scriptedClient("# Actionable Summary")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{"prompt": "review"})

	rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/actionable-summary", map[string]string{"model": "nova-pro"})
	if rec.Code != http.StatusOK {
		t.Fatalf("summary failed with %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["summary"] != "# Actionable Summary" {
		t.Errorf("unexpected summary: %v", body["summary"])
	}
	if !strings.HasPrefix(body["filename"].(string), "actionable_summary_") {
		t.Errorf("unexpected filename: %v", body["filename"])
	}
}

func TestExportMarkdown(t *testing.T) {
	handler := newTestServer(t, scriptedClient("feedback")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)
	doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{"prompt": "review"})

	rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/export", map[string]any{"format": "markdown"})
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed with %d: %s", rec.Code, rec.Body.String())
	}
	content := decodeBody(t, rec)["content"].(string)
	if !strings.Contains(content, "# AI Document Review Session") {
		t.Error("export missing header")
	}
	if !strings.Contains(content, "plan.md") {
		t.Error("export missing document name")
	}
	if !strings.Contains(content, "👤 User") || !strings.Contains(content, "🤖") {
		t.Error("export missing conversation turns")
	}

	if rec := doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/export", map[string]any{"format": "pdf"}); rec.Code != http.StatusBadRequest {
		t.Errorf("pdf export should be rejected, got %d", rec.Code)
	}
}

func TestSessionFromTemplate(t *testing.T) {
	handler := newTestServer(t, scriptedClient("templated feedback")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")

	rec := doJSON(t, handler, http.MethodPost, "/sessions/from-template", map[string]any{
		"template_ids":   []string{"security-review"},
		"document_ids":   []string{docID},
		"initial_prompt": "review this",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("from-template failed with %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	used := body["templates_used"].([]any)
	if len(used) != 1 || used[0] != "Security Reviewer" {
		t.Errorf("unexpected templates_used: %v", used)
	}
	conversation := body["conversation"].([]any)
	if len(conversation) != 2 {
		t.Errorf("expected user turn plus one agent turn, got %d", len(conversation))
	}

	rec = doJSON(t, handler, http.MethodPost, "/sessions/from-template", map[string]any{
		"template_ids":   []string{"no-such-template"},
		"document_ids":   []string{docID},
		"initial_prompt": "review this",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown template should be 400, got %d", rec.Code)
	}
}

func TestTokenEndpoints(t *testing.T) {
	handler := newTestServer(t, scriptedClient("feedback")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)
	doJSON(t, handler, http.MethodPost, "/sessions/"+sessID+"/prompt", map[string]string{"prompt": "review"})

	rec := doJSON(t, handler, http.MethodGet, "/sessions/"+sessID+"/tokens", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session tokens failed with %d", rec.Code)
	}
	if decodeBody(t, rec)["session_id"] != sessID {
		t.Error("session token summary should echo the session id")
	}

	if rec := doJSON(t, handler, http.MethodGet, "/tokens/summary", nil); rec.Code != http.StatusOK {
		t.Errorf("total tokens failed with %d", rec.Code)
	}
}

func TestAgentTemplates(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()
	rec := doJSON(t, handler, http.MethodGet, "/agent-templates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("agent-templates failed with %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "security-review") {
		t.Error("catalog missing template id")
	}
}

func TestRateLimiting(t *testing.T) {
	srv := newTestServer(t, scriptedClient("ok"))
	srv.cfg.Server.RatePerMinute = 2
	srv.limiter = newRateLimiter(2)
	handler := srv.Handler()

	for i := 0; i < 2; i++ {
		if rec := doJSON(t, handler, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, rec.Code)
		}
	}
	if rec := doJSON(t, handler, http.MethodGet, "/healthz", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request should be limited, got %d", rec.Code)
	}
}

func TestStreamRound(t *testing.T) {
	srv := newTestServer(t, scriptedClient("streamed reply"))
	handler := srv.Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	rec := doJSON(t, handler, http.MethodGet, "/sessions/"+sessID+"/stream?prompt=Review+the+plan", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream content type, got %q", ct)
	}

	body := rec.Body.String()
	for _, event := range []string{"user_message", "agent_thinking", "agent_response", "complete"} {
		if !strings.Contains(body, fmt.Sprintf("%q", event)) {
			t.Errorf("stream missing %s event:\n%s", event, body)
		}
	}

	// The round is applied to the session log like a regular prompt.
	get := doJSON(t, handler, http.MethodGet, "/sessions/"+sessID, nil)
	conv := decodeBody(t, get)["conversation"].([]any)
	if len(conv) != 4 {
		t.Errorf("expected user turn plus 3 responses in log, got %d", len(conv))
	}
}

func TestStreamValidation(t *testing.T) {
	srv := newTestServer(t, scriptedClient("ok"))
	handler := srv.Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	if rec := doJSON(t, handler, http.MethodGet, "/sessions/"+sessID+"/stream", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing prompt should 400, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/sessions/nope/stream?prompt=hi", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session should 404, got %d", rec.Code)
	}
}

func TestWriteFrontendLogs(t *testing.T) {
	srv := newTestServer(t, scriptedClient("ok"))
	srv.cfg.Server.LogDir = t.TempDir()
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/logs", map[string]any{
		"source": "frontend",
		"logs":   "console error line\n",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("logs write returned %d: %s", rec.Code, rec.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(srv.cfg.Server.LogDir, "frontend.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if string(data) != "console error line\n" {
		t.Errorf("unexpected log content %q", data)
	}

	if rec := doJSON(t, handler, http.MethodPost, "/logs", map[string]any{"logs": "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing source should 400, got %d", rec.Code)
	}
}

func TestWriteFrontendLogsStripsPathComponents(t *testing.T) {
	srv := newTestServer(t, scriptedClient("ok"))
	srv.cfg.Server.LogDir = t.TempDir()
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/logs", map[string]any{
		"source": "../escape",
		"logs":   "x",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("logs write returned %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(srv.cfg.Server.LogDir, "escape.log")); err != nil {
		t.Errorf("expected sanitized log file inside the log dir: %v", err)
	}
}

func TestRateLimitIgnoresSpoofedForwardedHeader(t *testing.T) {
	srv := newTestServer(t, scriptedClient("ok"))
	srv.cfg.Server.RatePerMinute = 2
	srv.limiter = newRateLimiter(2)
	handler := srv.Handler()

	// Without a trusted proxy every request counts against the socket peer,
	// whatever the client claims in X-Forwarded-For.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("spoofed third request should be limited, got %d", rec.Code)
		}
	}
}

func TestClientIPTrustProxyTakesFirstHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	if got := clientIP(req, false); got != "203.0.113.9" {
		t.Errorf("untrusted proxy: expected socket peer, got %q", got)
	}
	if got := clientIP(req, true); got != "198.51.100.7" {
		t.Errorf("trusted proxy: expected first hop, got %q", got)
	}
}

func TestNoCacheHeaders(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()
	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("missing no-cache headers, got %q", got)
	}
}

func TestGetSession(t *testing.T) {
	handler := newTestServer(t, scriptedClient("ok")).Handler()
	docID := uploadDocument(t, handler, "plan.md", "# The Plan")
	sessID := createSession(t, handler, docID)

	rec := doJSON(t, handler, http.MethodGet, "/sessions/"+sessID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session failed with %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["session_id"] != sessID {
		t.Errorf("unexpected session id: %v", body["session_id"])
	}
	names := body["document_filenames"].([]any)
	if len(names) != 1 || names[0] != "plan.md" {
		t.Errorf("unexpected filenames: %v", names)
	}
	members := body["team_members"].([]any)
	if len(members) != 3 {
		t.Errorf("expected 3 members, got %d", len(members))
	}
}
