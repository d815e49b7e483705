package llm

import (
	"context"
	"fmt"
	"sync"
)

// Completer is what the orchestrator needs from a provider.
type Completer interface {
	Name() string
	Model(reasoning bool) string
	ThinkingFlag() bool
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// EnabledFunc reports whether a provider is switched on right now.
type EnabledFunc func(ctx context.Context, provider string) bool

// Router picks the first enabled provider, in registration order, for each turn.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Completer
	order     []string
	enabled   EnabledFunc
}

// NewRouter registers providers in preference order. A nil enabled func
// treats every provider as enabled.
func NewRouter(enabled EnabledFunc, providers ...Completer) *Router {
	if enabled == nil {
		enabled = func(context.Context, string) bool { return true }
	}
	r := &Router{providers: make(map[string]Completer, len(providers)), enabled: enabled}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds (or replaces) a provider under its name.
func (r *Router) Register(p Completer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Route returns the provider for the current turn.
func (r *Router) Route(ctx context.Context) (Completer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if r.enabled(ctx, name) {
			return r.providers[name], nil
		}
	}
	return nil, fmt.Errorf("%w (registered: %v)", ErrNoProvider, r.order)
}
