// Package resource tracks native objects so they are destroyed in the reverse order they were
// created.
package resource

import (
	"golang.org/x/exp/slog"
)

type entry struct {
	name    string
	release func()
}

// Scope is a stack of release functions. Objects pushed later depend on objects pushed
// earlier, so Release runs them last-in first-out.
type Scope struct {
	logger  *slog.Logger
	entries []entry
}

// NewScope returns an empty scope. A nil logger uses slog.Default.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{logger: logger}
}

// Defer registers release to run when the scope is released.
func (s *Scope) Defer(name string, release func()) {
	s.entries = append(s.entries, entry{name: name, release: release})
}

// Len is the number of objects still owned by the scope.
func (s *Scope) Len() int {
	return len(s.entries)
}

// Adopt moves everything owned by child into s. The child is left empty.
func (s *Scope) Adopt(child *Scope) {
	s.entries = append(s.entries, child.entries...)
	child.entries = nil
}

// Release destroys every owned object, newest first. Calling it again is a no-op.
func (s *Scope) Release() {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		s.logger.Debug("release", "object", e.name)
		e.release()
	}
	s.entries = nil
}
