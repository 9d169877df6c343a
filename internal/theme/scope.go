// Package theme projects the active tenant's brand colors into a process-wide style scope.
package theme

import (
	"net/http"
	"sort"
	"strings"
	"sync"
)

// StyleScope is the global style state the cascade writes to.
type StyleScope interface {
	Set(name, value string)
	Clear(name string)
}

// Batcher is implemented by scopes that can apply several edits atomically.
type Batcher interface {
	Batch(fn func(StyleScope))
}

// MemoryScope is a concurrency-safe StyleScope rendered as CSS custom properties.
type MemoryScope struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMemoryScope returns an empty scope.
func NewMemoryScope() *MemoryScope {
	return &MemoryScope{vars: make(map[string]string)}
}

// Set writes a variable.
func (s *MemoryScope) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Clear removes a variable.
func (s *MemoryScope) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Batch runs fn with the scope locked; readers see all of fn's edits or none.
func (s *MemoryScope) Batch(fn func(StyleScope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(unlocked{vars: s.vars})
}

// Get returns a variable value.
func (s *MemoryScope) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Snapshot copies the current variables.
func (s *MemoryScope) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// CSS renders the scope as a :root rule with variables in name order.
func (s *MemoryScope) CSS() string {
	vars := s.Snapshot()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, name := range names {
		b.WriteString("  ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(vars[name])
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// ServeHTTP serves the scope as a stylesheet.
func (s *MemoryScope) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(s.CSS()))
}

type unlocked struct {
	vars map[string]string
}

func (u unlocked) Set(name, value string) { u.vars[name] = value }
func (u unlocked) Clear(name string)      { delete(u.vars, name) }
