// Package clipboard provides write-only text export sinks for the combined
// clinical note. Writers never read back what they wrote.
package clipboard

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrEmptyScope is returned when a write has no scope to land in.
var ErrEmptyScope = errors.New("clipboard: scope is required")

// Clipboard writes text under a scope (the operator session).
type Clipboard interface {
	WriteText(ctx context.Context, scope, text string) error
}

// Func adapts a function to Clipboard.
type Func func(ctx context.Context, scope, text string) error

func (f Func) WriteText(ctx context.Context, scope, text string) error {
	return f(ctx, scope, text)
}

// Memory keeps the latest text per scope in process memory.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) WriteText(ctx context.Context, scope, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(scope) == "" {
		return ErrEmptyScope
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[scope] = text
	return nil
}

// Last returns what was most recently written for scope.
func (m *Memory) Last(scope string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.entries[scope]
	return text, ok
}
