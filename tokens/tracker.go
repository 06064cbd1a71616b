package tokens

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/docpanel/docpanel/pkg/logging"
)

// Record captures the token usage of a single model invocation.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	AgentName    string    `json:"agent_name"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	ResponseTime float64   `json:"response_time_seconds"`
}

// Breakdown aggregates token usage for one grouping key (a model or agent).
type Breakdown struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	Invocations  int `json:"invocations"`
}

// SessionSummary aggregates token usage for a single session.
type SessionSummary struct {
	SessionID         string               `json:"session_id"`
	TotalInputTokens  int                  `json:"total_input_tokens"`
	TotalOutputTokens int                  `json:"total_output_tokens"`
	TotalTokens       int                  `json:"total_tokens"`
	TotalInvocations  int                  `json:"total_invocations"`
	ModelBreakdown    map[string]Breakdown `json:"model_breakdown"`
	AgentBreakdown    map[string]Breakdown `json:"agent_breakdown"`
	Records           []Record             `json:"records,omitempty"`
}

// TotalSummary aggregates token usage across all sessions.
type TotalSummary struct {
	TotalInputTokens           int                  `json:"total_input_tokens"`
	TotalOutputTokens          int                  `json:"total_output_tokens"`
	TotalTokens                int                  `json:"total_tokens"`
	TotalSessions              int                  `json:"total_sessions"`
	TotalInvocations           int                  `json:"total_invocations"`
	TokensByModel              map[string]Breakdown `json:"tokens_by_model"`
	AverageTokensPerSession    int                  `json:"average_tokens_per_session"`
	AverageTokensPerInvocation int                  `json:"average_tokens_per_invocation"`
}

// Export is the serialized form of a full tracker dump.
type Export struct {
	ExportTimestamp time.Time                 `json:"export_timestamp"`
	Summary         TotalSummary              `json:"summary"`
	SessionDetails  map[string]SessionSummary `json:"session_details"`
}

// Tracker accumulates per-invocation token records in memory. It is safe for
// concurrent use; agents from a discussion round record into it in parallel.
type Tracker struct {
	mu        sync.RWMutex
	sessions  map[string][]Record
	estimator *Estimator
	logger    *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions:  make(map[string][]Record),
		estimator: NewEstimator(),
		logger:    logging.WithComponent("tokens"),
	}
}

// Record estimates token counts for one invocation and stores them.
func (t *Tracker) Record(sessionID, agentName, model, input, output string, elapsed time.Duration) {
	record := Record{
		Timestamp:    time.Now(),
		SessionID:    sessionID,
		AgentName:    agentName,
		Model:        model,
		InputTokens:  t.estimator.Count(model, input),
		OutputTokens: t.estimator.Count(model, output),
		ResponseTime: elapsed.Seconds(),
	}
	record.TotalTokens = record.InputTokens + record.OutputTokens

	t.mu.Lock()
	t.sessions[sessionID] = append(t.sessions[sessionID], record)
	t.mu.Unlock()

	t.logger.Info("agent invocation tokens tracked",
		"session_id", sessionID,
		"agent_name", agentName,
		"model", model,
		"input_tokens", record.InputTokens,
		"output_tokens", record.OutputTokens,
		"total_tokens", record.TotalTokens,
		"response_time_seconds", record.ResponseTime,
	)
}

// SessionSummary returns the aggregated usage for one session. A session with
// no recorded invocations yields a zero summary with empty breakdowns.
func (t *Tracker) SessionSummary(sessionID string) SessionSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionSummaryLocked(sessionID)
}

func (t *Tracker) sessionSummaryLocked(sessionID string) SessionSummary {
	records := t.sessions[sessionID]

	summary := SessionSummary{
		SessionID:      sessionID,
		ModelBreakdown: make(map[string]Breakdown),
		AgentBreakdown: make(map[string]Breakdown),
	}
	for _, r := range records {
		summary.TotalInputTokens += r.InputTokens
		summary.TotalOutputTokens += r.OutputTokens
		summary.TotalInvocations++

		m := summary.ModelBreakdown[r.Model]
		m.InputTokens += r.InputTokens
		m.OutputTokens += r.OutputTokens
		m.TotalTokens += r.TotalTokens
		m.Invocations++
		summary.ModelBreakdown[r.Model] = m

		a := summary.AgentBreakdown[r.AgentName]
		a.InputTokens += r.InputTokens
		a.OutputTokens += r.OutputTokens
		a.TotalTokens += r.TotalTokens
		a.Invocations++
		summary.AgentBreakdown[r.AgentName] = a
	}
	summary.TotalTokens = summary.TotalInputTokens + summary.TotalOutputTokens
	summary.Records = append([]Record(nil), records...)
	return summary
}

// TotalSummary returns the aggregated usage across every session.
func (t *Tracker) TotalSummary() TotalSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSummaryLocked()
}

func (t *Tracker) totalSummaryLocked() TotalSummary {
	summary := TotalSummary{
		TokensByModel: make(map[string]Breakdown),
		TotalSessions: len(t.sessions),
	}
	for _, records := range t.sessions {
		for _, r := range records {
			summary.TotalInputTokens += r.InputTokens
			summary.TotalOutputTokens += r.OutputTokens
			summary.TotalInvocations++

			m := summary.TokensByModel[r.Model]
			m.InputTokens += r.InputTokens
			m.OutputTokens += r.OutputTokens
			m.TotalTokens += r.TotalTokens
			m.Invocations++
			summary.TokensByModel[r.Model] = m
		}
	}
	summary.TotalTokens = summary.TotalInputTokens + summary.TotalOutputTokens
	if summary.TotalSessions > 0 {
		summary.AverageTokensPerSession = summary.TotalTokens / summary.TotalSessions
	}
	if summary.TotalInvocations > 0 {
		summary.AverageTokensPerInvocation = summary.TotalTokens / summary.TotalInvocations
	}
	return summary
}

// Snapshot builds a complete export of the tracker state.
func (t *Tracker) Snapshot() Export {
	t.mu.RLock()
	defer t.mu.RUnlock()

	export := Export{
		ExportTimestamp: time.Now(),
		Summary:         t.totalSummaryLocked(),
		SessionDetails:  make(map[string]SessionSummary, len(t.sessions)),
	}
	for id := range t.sessions {
		export.SessionDetails[id] = t.sessionSummaryLocked(id)
	}
	return export
}

// ExportJSON writes the full tracker state to a JSON file and returns the
// path. An empty path picks a timestamped filename in the working directory.
func (t *Tracker) ExportJSON(path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("token_report_%s.json", time.Now().Format("20060102_150405"))
	}

	raw, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal token export: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write token export: %w", err)
	}

	t.logger.Info("token data exported", "path", path)
	return path, nil
}
