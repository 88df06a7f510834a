package event

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrInvalidBinding = errors.New("event: type and renderer are required")

// Binding is what the registry knows about one event type.
type Binding struct {
	Renderer Renderer
	Section  Section
}

// Registry maps event types to renderers. Lookups of unregistered types
// report ok=false; callers skip such events.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

func NewRegistry() *Registry {
	return &Registry{bindings: map[string]Binding{}}
}

// Register binds eventType to r under section s, replacing any earlier
// binding for the same type.
func (r *Registry) Register(eventType string, fn Renderer, s Section) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || fn == nil {
		return ErrInvalidBinding
	}
	r.mu.Lock()
	r.bindings[eventType] = Binding{Renderer: fn, Section: s.Normalize()}
	r.mu.Unlock()
	return nil
}

func (r *Registry) RendererFor(eventType string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[eventType]
	return b, ok
}

// Types lists the registered event types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.bindings))
	for t := range r.bindings {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
