package discussion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docpanel/docpanel/document"
	"github.com/docpanel/docpanel/pkg/logging"
	"github.com/docpanel/docpanel/session"
)

// SummaryAgentName identifies the synthetic agent that produces actionable
// summaries, both in logs and in usage accounting.
const SummaryAgentName = "ActionableSummaryAgent"

// Summarizer turns a session's accumulated agent feedback into a prioritized
// markdown action plan.
type Summarizer struct {
	invoker  *Invoker
	factory  *Factory
	minItems int
	maxItems int
	logger   *slog.Logger
}

// NewSummarizer creates a summarizer. minItems and maxItems bound the number
// of action items the summary asks for.
func NewSummarizer(invoker *Invoker, factory *Factory, minItems, maxItems int) *Summarizer {
	return &Summarizer{
		invoker:  invoker,
		factory:  factory,
		minItems: minItems,
		maxItems: maxItems,
		logger:   logging.WithComponent("summary"),
	}
}

// Generate builds an actionable summary of every agent suggestion in the
// session so far, using the given friendly model name. Error turns contribute
// nothing. The error is terminal: summaries have no apology fallback.
func (s *Summarizer) Generate(ctx context.Context, sess *session.Session, docs []document.Ref, model string) (string, error) {
	corpus := document.RenderCorpus(docs)
	suggestions := renderSuggestions(sess.Log.Turns())

	agent := Agent{
		Name:         SummaryAgentName,
		Role:         "Summary",
		SystemPrompt: fmt.Sprintf(summarySystemPrompt, corpus, suggestions, s.minItems, s.maxItems),
		ModelID:      s.factory.ResolveModel(model),
	}

	markdown, elapsed, err := s.invoker.Invoke(ctx, sess.ID, agent, summaryRequestPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate actionable summary: %w", err)
	}

	s.logger.Info("actionable summary generated",
		"session_id", sess.ID,
		"model", model,
		"generation_time_seconds", round2(elapsed.Seconds()),
		"summary_length", len(markdown),
	)
	return markdown, nil
}
