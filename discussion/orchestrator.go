package discussion

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/docpanel/docpanel/document"
	"github.com/docpanel/docpanel/message"
	"github.com/docpanel/docpanel/pkg/logging"
	"github.com/docpanel/docpanel/pkg/telemetry"
	"github.com/docpanel/docpanel/session"
	"go.opentelemetry.io/otel/attribute"
)

// Orchestrator runs discussion rounds: it fans a prompt out to every regular
// reviewer concurrently, waits for all of them, then runs the moderator over
// the enriched transcript. A failed member degrades to an apology turn so one
// slow or broken model never loses the rest of the round.
type Orchestrator struct {
	invoker *Invoker
	factory *Factory
	logger  *slog.Logger

	mu            sync.Mutex
	rng           *rand.Rand
	maxConcurrent int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRand fixes the shuffle source. Production uses the process-global
// source; tests pass a seeded one to pin dispatch order.
func WithRand(rng *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = rng }
}

// WithMaxConcurrent caps how many members run at once. Zero means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) { o.maxConcurrent = n }
}

// WithLogger overrides the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator over an invoker and agent factory.
func NewOrchestrator(invoker *Invoker, factory *Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker: invoker,
		factory: factory,
		logger:  logging.WithComponent("discussion"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one discussion round and returns the batch of agent turns in
// display order: regular members in shuffled dispatch order, moderator last.
// The session log is not modified; appending the batch is the caller's call.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, docs []document.Ref, prompt string) ([]*message.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discussion round: %w", err)
	}

	ctx, span := telemetry.Tracer("discussion").Start(ctx, "discussion.round")
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.Int("team.size", len(sess.Members)),
		attribute.Int("documents", len(docs)),
	)
	defer telemetry.End(span, nil)

	corpus := document.RenderCorpus(docs)
	transcript := renderTranscript(sess.Log.Turns(), prompt)

	// First qualifying member moderates; any further qualifying members are
	// treated as regular reviewers.
	var regulars []session.TeamMember
	var moderator *session.TeamMember
	for _, member := range sess.Members {
		if moderator == nil && member.IsModerator() {
			m := member
			moderator = &m
			continue
		}
		regulars = append(regulars, member)
	}

	shuffle(o, regulars)

	o.logger.Info("starting discussion round",
		"session_id", sess.ID,
		"members", len(sess.Members),
		"documents", len(docs),
	)

	results := o.fanOut(ctx, sess.ID, regulars, func(member session.TeamMember) Agent {
		return o.factory.Build(member, corpus, transcript, "")
	}, prompt)

	batch := results
	if moderator != nil {
		// The moderator sees the round it is synthesizing: the transcript is
		// re-rendered with the regular responses included.
		enriched := renderTranscript(append(sess.Log.Turns(), results...), prompt)
		agent := o.factory.Build(*moderator, corpus, enriched, "")
		batch = append(batch, o.invokeMember(ctx, sess.ID, *moderator, agent, prompt))
	}

	o.logger.Info("discussion round completed",
		"session_id", sess.ID,
		"responses", len(batch),
	)
	return batch, nil
}

// RunWithTemplates executes a round where members carry custom template
// instructions, keyed by member ID. There is no moderator split: every member
// runs concurrently and the whole batch is shuffled afterwards.
func (o *Orchestrator) RunWithTemplates(ctx context.Context, sess *session.Session, docs []document.Ref, prompt string, templatePrompts map[string]string) ([]*message.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discussion round: %w", err)
	}

	corpus := document.RenderCorpus(docs)
	transcript := renderTranscript(sess.Log.Turns(), prompt)

	o.logger.Info("starting template discussion round",
		"session_id", sess.ID,
		"members", len(sess.Members),
	)

	batch := o.fanOut(ctx, sess.ID, sess.Members, func(member session.TeamMember) Agent {
		return o.factory.Build(member, corpus, transcript, templatePrompts[member.ID])
	}, prompt)

	shuffle(o, batch)

	o.logger.Info("template discussion round completed",
		"session_id", sess.ID,
		"responses", len(batch),
	)
	return batch, nil
}

// Regenerate discards everything after the last user turn and replays that
// prompt as a fresh round.
func (o *Orchestrator) Regenerate(ctx context.Context, sess *session.Session, docs []document.Ref) ([]*message.Turn, error) {
	prompt, err := sess.Log.TruncateAfterLastUser()
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, sess, docs, prompt)
}

// RoundEvent reports progress of a streaming round.
type RoundEvent struct {
	// Name is one of agent_thinking, agent_response, agent_error.
	Name  string
	Agent string
	Turn  *message.Turn
}

// RunSequential executes a round one member at a time, in declared member
// order, calling emit before and after each invocation so transports can
// stream progress. Every member sees the same pre-round transcript. A member
// failure emits agent_error and the round continues; only context
// cancellation stops it early.
func (o *Orchestrator) RunSequential(ctx context.Context, sess *session.Session, docs []document.Ref, prompt string, emit func(RoundEvent)) ([]*message.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discussion round: %w", err)
	}

	corpus := document.RenderCorpus(docs)
	transcript := renderTranscript(sess.Log.Turns(), prompt)

	o.logger.Info("starting streaming discussion round",
		"session_id", sess.ID,
		"members", len(sess.Members),
	)

	batch := make([]*message.Turn, 0, len(sess.Members))
	for _, member := range sess.Members {
		if err := ctx.Err(); err != nil {
			return batch, fmt.Errorf("discussion round: %w", err)
		}
		emit(RoundEvent{Name: "agent_thinking", Agent: member.Name})

		agent := o.factory.Build(member, corpus, transcript, "")
		turn := o.invokeMember(ctx, sess.ID, member, agent, prompt)
		batch = append(batch, turn)

		name := "agent_response"
		if turn.Error {
			name = "agent_error"
		}
		emit(RoundEvent{Name: name, Agent: member.Name, Turn: turn})
	}

	o.logger.Info("streaming discussion round completed",
		"session_id", sess.ID,
		"responses", len(batch),
	)
	return batch, nil
}

// fanOut runs every member concurrently and returns one turn per member, in
// member order. A member whose invocation fails after retries yields an
// apology turn in its slot.
func (o *Orchestrator) fanOut(ctx context.Context, sessionID string, members []session.TeamMember, build func(session.TeamMember) Agent, prompt string) []*message.Turn {
	results := make([]*message.Turn, len(members))

	var sem chan struct{}
	if o.maxConcurrent > 0 {
		sem = make(chan struct{}, o.maxConcurrent)
	}

	var wg sync.WaitGroup
	for idx, member := range members {
		wg.Add(1)
		go func(idx int, member session.TeamMember) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			agent := build(member)
			results[idx] = o.invokeMember(ctx, sessionID, member, agent, prompt)
		}(idx, member)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) invokeMember(ctx context.Context, sessionID string, member session.TeamMember, agent Agent, prompt string) *message.Turn {
	text, elapsed, err := o.invoker.Invoke(ctx, sessionID, agent, roundPrompt(prompt, member.Role))
	if err != nil {
		o.logger.Error("agent failed after retries",
			"session_id", sessionID,
			"agent_name", member.Name,
			"error", err.Error(),
		)
		return message.NewAgentErrorTurn(member.ID, member.Name, member.Role, member.Model, err)
	}

	turn := message.NewAgentTurn(member.ID, member.Name, member.Role, member.Model, text)
	turn.ResponseTimeSeconds = round2(elapsed.Seconds())
	turn.ResponseLength = len(text)
	return turn
}

// shuffle randomizes slice order in place. The configured source is guarded
// because rand.Rand is not safe for concurrent rounds.
func shuffle[T any](o *Orchestrator, s []T) {
	swap := func(i, j int) { s[i], s[j] = s[j], s[i] }
	if o.rng != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.rng.Shuffle(len(s), swap)
		return
	}
	rand.Shuffle(len(s), swap)
}
