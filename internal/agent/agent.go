// Package agent keeps a value refreshed from the database.
//
// An Agent runs its refresh script with itself as the request and takes
// its new value from one column of the result ("value" unless configured
// otherwise). An optional properties script fills a caller's object when
// the agent is inspected.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/value"
)

// DefaultValueFrom is the column read when none is configured.
const DefaultValueFrom = "value"

// Agent is safe for concurrent use. Refreshes are serialized.
type Agent struct {
	name       string
	exec       *executor.Executor
	refresh    *script.Script
	properties *script.Script
	valueFrom  string
	logger     *slog.Logger
	now        func() time.Time

	refreshMu sync.Mutex

	mu      sync.RWMutex
	value   value.Value
	updated time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithProperties sets the script that describes the agent.
func WithProperties(s *script.Script) Option {
	return func(a *Agent) {
		a.properties = s
	}
}

// WithValueFrom sets the result column holding the agent value.
func WithValueFrom(column string) Option {
	return func(a *Agent) {
		if column != "" {
			a.valueFrom = column
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New creates an agent. Its value is Null until the first refresh.
func New(name string, exec *executor.Executor, refresh *script.Script, opts ...Option) *Agent {
	a := &Agent{
		name:      name,
		exec:      exec,
		refresh:   refresh,
		valueFrom: DefaultValueFrom,
		logger:    slog.Default(),
		now:       time.Now,
		value:     value.Null{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("agent", name)
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.name
}

// Value returns the current value.
func (a *Agent) Value() value.Value {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Updated returns the time of the last successful refresh.
func (a *Agent) Updated() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updated
}

// Set replaces the value without running the refresh script.
func (a *Agent) Set(v value.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = v
	a.updated = a.now()
}

// Lookup implements value.Source: "name", "value" and "updated" resolve to
// the agent's own state.
func (a *Agent) Lookup(key string) (value.Value, bool) {
	switch key {
	case "name":
		return value.String(a.name), true
	case "value":
		return a.Value(), true
	case "updated":
		if ts := a.Updated(); !ts.IsZero() {
			return value.NewTimestamp(ts), true
		}
	}
	return nil, false
}

// Refresh runs the refresh script and reports whether the value changed.
// A nil or empty refresh script is a no-op.
func (a *Agent) Refresh(ctx context.Context) (bool, error) {
	if a.refresh.Len() == 0 {
		return false, nil
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	response := value.NewObject()
	if err := a.exec.Exec(ctx, a.refresh, a, response); err != nil {
		return false, fmt.Errorf("refresh agent %s: %w", a.name, err)
	}

	next, ok := response.Lookup(a.valueFrom)
	if !ok {
		return false, fmt.Errorf("refresh agent %s: result has no %q column", a.name, a.valueFrom)
	}

	a.mu.Lock()
	prev := a.value
	a.value = next
	a.updated = a.now()
	a.mu.Unlock()

	changed := prev.Type() != next.Type() || prev.String() != next.String()
	if changed {
		a.logger.Info("value changed", "from", prev.String(), "to", next.String())
	}
	return changed, nil
}

// Properties describes the agent into out. Without a properties script
// the agent's own name, value and update time are written.
func (a *Agent) Properties(ctx context.Context, out *value.Object) error {
	if a.properties.Len() > 0 {
		if err := a.exec.Exec(ctx, a.properties, a, out); err != nil {
			return fmt.Errorf("properties of agent %s: %w", a.name, err)
		}
		return nil
	}

	for _, key := range []string{"name", "value", "updated"} {
		if v, ok := a.Lookup(key); ok {
			out.Set(key, v)
		}
	}
	return nil
}
