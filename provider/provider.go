package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Request is one opaque generation call: a backend model identifier, the
// system instructions for the agent and the prompt for this turn.
type Request struct {
	ModelID string
	System  string
	Prompt  string
}

// Client is the opaque text-generation capability. Any failure it returns is
// treated as transient by the retry wrapper above it.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Client interface.
type Func func(ctx context.Context, req Request) (string, error)

// Generate implements Client.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Registry routes generation requests to backend clients by model-ID prefix,
// so one deployment can mix model families behind a single Client. A request
// whose model matches no prefix goes to the fallback client.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client
	fallback Client
}

// NewRegistry creates a registry with the given fallback client.
func NewRegistry(fallback Client) *Registry {
	return &Registry{
		clients:  make(map[string]Client),
		fallback: fallback,
	}
}

// Register routes model IDs starting with prefix to the given client.
func (r *Registry) Register(prefix string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[prefix] = c
}

// Generate implements Client by dispatching on the request's model ID. The
// longest matching registered prefix wins.
func (r *Registry) Generate(ctx context.Context, req Request) (string, error) {
	c := r.route(req.ModelID)
	if c == nil {
		return "", fmt.Errorf("no provider registered for model %q", req.ModelID)
	}
	return c.Generate(ctx, req)
}

func (r *Registry) route(modelID string) Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Client
	bestLen := -1
	for prefix, c := range r.clients {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > bestLen {
			best = c
			bestLen = len(prefix)
		}
	}
	if best == nil {
		return r.fallback
	}
	return best
}
