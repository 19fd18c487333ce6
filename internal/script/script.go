package script

import (
	"slices"
	"strings"

	"github.com/roach88/sqlscript/internal/sqlerr"
)

// Script is an ordered set of statements sharing one connection identifier.
type Script struct {
	connection string
	statements []Statement
	childName  string
	allowEmpty bool
}

// Option configures a Script at construction.
type Option func(*Script)

// WithChildName sets the key a multi-row report is mounted under. Without
// it the whole response becomes the report.
func WithChildName(name string) Option {
	return func(s *Script) {
		s.childName = name
	}
}

// WithAllowEmpty accepts scripts that normalize to zero statements.
func WithAllowEmpty(allow bool) Option {
	return func(s *Script) {
		s.allowEmpty = allow
	}
}

// New normalizes every text block and builds the script.
//
// Returns a ParseError for a malformed placeholder and a ConfigError for an
// empty connection or, unless allowed, a script without statements.
func New(connection string, blocks []string, opts ...Option) (*Script, error) {
	s := &Script{connection: strings.TrimSpace(connection)}
	for _, opt := range opts {
		opt(s)
	}

	if s.connection == "" {
		return nil, sqlerr.New(sqlerr.KindConfig, "required connection is missing or empty")
	}

	for _, block := range blocks {
		stmts, err := Normalize(block)
		if err != nil {
			return nil, err
		}
		s.statements = append(s.statements, stmts...)
	}

	if len(s.statements) == 0 && !s.allowEmpty {
		return nil, sqlerr.New(sqlerr.KindConfig, "script has no statements")
	}

	return s, nil
}

// Connection returns the engine specific connection identifier.
func (s *Script) Connection() string {
	return s.connection
}

// ChildName returns the report mount point, or "".
func (s *Script) ChildName() string {
	return s.childName
}

// Len returns the number of statements.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.statements)
}

// Statements returns the statements in declaration order.
func (s *Script) Statements() []Statement {
	return slices.Clone(s.statements)
}

// Params returns every distinct parameter name, in first-use order.
func (s *Script) Params() []string {
	var names []string
	for _, stmt := range s.statements {
		for _, p := range stmt.Params {
			if !slices.Contains(names, p) {
				names = append(names, p)
			}
		}
	}
	return names
}
