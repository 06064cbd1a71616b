package discussion

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/docpanel/docpanel/pkg/logging"
	"github.com/docpanel/docpanel/provider"
)

const (
	defaultMaxTries        = 3
	defaultInitialInterval = 2 * time.Second
	defaultMaxInterval     = 10 * time.Second
)

// UsageSink receives per-invocation usage data. Recording is best effort and
// must never slow down or fail an invocation.
type UsageSink interface {
	Record(sessionID, agentName, model, input, output string, elapsed time.Duration)
}

// Invoker wraps a provider client with retry, timing and usage accounting.
// Every failure is retried uniformly; only context cancellation cuts the
// attempt sequence short.
type Invoker struct {
	client         provider.Client
	sink           UsageSink
	logger         *slog.Logger
	maxTries       uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithUsageSink attaches a usage sink. Nil disables accounting.
func WithUsageSink(sink UsageSink) InvokerOption {
	return func(i *Invoker) { i.sink = sink }
}

// WithMaxTries overrides the attempt limit.
func WithMaxTries(n uint) InvokerOption {
	return func(i *Invoker) {
		if n > 0 {
			i.maxTries = n
		}
	}
}

// WithBackoffIntervals overrides the initial and maximum wait between
// attempts.
func WithBackoffIntervals(initial, max time.Duration) InvokerOption {
	return func(i *Invoker) {
		if initial > 0 {
			i.initialBackoff = initial
		}
		if max > 0 {
			i.maxBackoff = max
		}
	}
}

// WithAttemptTimeout bounds each individual attempt. Zero means attempts run
// under the round's context only.
func WithAttemptTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.attemptTimeout = d }
}

// WithInvokerLogger overrides the component logger.
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInvoker creates an invoker over the given provider client.
func NewInvoker(client provider.Client, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		client:         client,
		logger:         logging.WithComponent("invoker"),
		maxTries:       defaultMaxTries,
		initialBackoff: defaultInitialInterval,
		maxBackoff:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs one generation request with retries and returns the response
// text plus the duration of the successful attempt. The returned error is the
// final attempt's error once retries are exhausted.
func (i *Invoker) Invoke(ctx context.Context, sessionID string, agent Agent, prompt string) (string, time.Duration, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = i.initialBackoff
	expo.MaxInterval = i.maxBackoff
	expo.Multiplier = 2
	expo.RandomizationFactor = 0

	var attemptElapsed time.Duration

	operation := func() (string, error) {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if i.attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, i.attemptTimeout)
			defer cancel()
		}

		start := time.Now()
		text, err := i.client.Generate(attemptCtx, provider.Request{
			ModelID: agent.ModelID,
			System:  agent.SystemPrompt,
			Prompt:  prompt,
		})
		attemptElapsed = time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				// The round is gone; retrying would only burn the backoff.
				return "", backoff.Permanent(err)
			}
			i.logger.Warn("agent invocation failed, will retry",
				"agent_name", agent.Name,
				"attempt_time_seconds", round2(attemptElapsed.Seconds()),
				"error", err.Error(),
			)
			return "", err
		}
		return text, nil
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(i.maxTries),
	)
	if err != nil {
		return "", attemptElapsed, err
	}

	tokensPerSecond := 0.0
	if attemptElapsed > 0 {
		tokensPerSecond = round2(float64(len(strings.Fields(text))) / attemptElapsed.Seconds())
	}
	i.logger.Info("agent response completed",
		"agent_name", agent.Name,
		"response_time_seconds", round2(attemptElapsed.Seconds()),
		"response_length", len(text),
		"tokens_per_second", tokensPerSecond,
	)

	if i.sink != nil {
		elapsed := attemptElapsed
		go i.sink.Record(sessionID, agent.Name, agent.ModelID, prompt, text, elapsed)
	}

	return text, attemptElapsed, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
