package providers

import (
	"fmt"
	"strings"
	"sync"
)

// Builder creates a Completer from a provider entry.
type Builder func(cfg Provider, log Logger) (Completer, error)

// completerRegistry implements CompleterRegistry. Completers built from type
// builders are cached per provider id so their rate limiters are shared.
type completerRegistry struct {
	completersByID map[string]Completer
	buildersByType map[string]Builder
	log            Logger
	mu             sync.RWMutex
}

// NewCompleterRegistry builds a registry for the provided completer implementations keyed by provider id.
func NewCompleterRegistry(completers ...Completer) CompleterRegistry {
	return NewTypeCompleterRegistry(nil, nil, completers...)
}

// NewTypeCompleterRegistry builds a registry with type-based builders and provider-specific completers.
func NewTypeCompleterRegistry(builders map[string]Builder, log Logger, completers ...Completer) CompleterRegistry {
	reg := &completerRegistry{
		completersByID: make(map[string]Completer),
		buildersByType: make(map[string]Builder),
		log:            ensureLogger(log),
	}

	for _, c := range completers {
		reg.registerIDCompleter(c)
	}
	for typ, b := range builders {
		reg.registerTypeBuilder(typ, b)
	}

	return reg
}

// registerIDCompleter registers a completer by its provider ID.
func (r *completerRegistry) registerIDCompleter(c Completer) {
	if c == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(c.ID()))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.completersByID[key] = c
	r.mu.Unlock()
}

// registerTypeBuilder registers a builder by provider type.
func (r *completerRegistry) registerTypeBuilder(typ string, b Builder) {
	if b == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.buildersByType[key] = b
	r.mu.Unlock()
}

// CompleterFor selects the completer for the given provider based on its id or type.
func (r *completerRegistry) CompleterFor(cfg Provider) (Completer, error) {
	if r == nil {
		return nil, fmt.Errorf("completer registry is nil")
	}
	idKey := strings.ToLower(strings.TrimSpace(cfg.ID))
	if idKey == "" {
		return nil, fmt.Errorf("provider id is empty")
	}

	r.mu.RLock()
	c, ok := r.completersByID[idKey]
	builder := r.buildersByType[strings.ToLower(strings.TrimSpace(cfg.Type))]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if builder == nil {
		return nil, fmt.Errorf("no completer registered for provider %q (type %q)", cfg.ID, cfg.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.completersByID[idKey]; ok {
		return c, nil
	}
	c, err := builder(cfg, r.log)
	if err != nil {
		return nil, fmt.Errorf("build completer for provider %q: %w", cfg.ID, err)
	}
	r.completersByID[idKey] = c
	return c, nil
}

// DefaultCompleterRegistry wires up the known provider types.
func DefaultCompleterRegistry(log Logger) CompleterRegistry {
	builders := map[string]Builder{
		TypeOpenAIChat: NewOpenAIChatCompleter,
		TypeAnthropic:  NewAnthropicCompleter,
	}
	return NewTypeCompleterRegistry(builders, log)
}
