// Package session implements the execution context spec §2/§4.5 describes:
// an immutable, layered handle carrying session identity, the selected
// namespace/database, bound parameters, and the transaction handle. It
// stands in for the CLI/HTTP/RPC front-end spec.md names only by its
// consumed interface (session with namespace/database/auth).
package session

import (
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Level is the minimum context level an operator requires, and the level
// at which an ExecutionContext currently sits in the root→ns→db
// hierarchy.
type Level int

const (
	LevelRoot Level = iota
	LevelNamespace
	LevelDatabase
)

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "ROOT"
	case LevelNamespace:
		return "NAMESPACE"
	case LevelDatabase:
		return "DATABASE"
	default:
		return "UNKNOWN"
	}
}

// Auth carries the caller's identity: either a system user at some base,
// or the subject of an access grant (record or bearer).
type Auth struct {
	Level   Level
	User    string
	Role    string
	Subject string // record-id string form, for record/bearer grant subjects
}

// IsOwner reports whether this auth bypasses table permissions entirely,
// per spec §7 "Owner roles bypass table permissions".
func (a Auth) IsOwner() bool { return a.Role == "owner" }

// ExecutionContext is immutable: every With* method returns a new value.
type ExecutionContext struct {
	Level      Level
	Namespace  string
	Database   string
	Auth       Auth
	Parameters map[string]value.Value
	Tx         kv.Transactable
}

// Root builds the base execution context for a fresh session with no
// namespace/database selected yet.
func Root(auth Auth, tx kv.Transactable) ExecutionContext {
	return ExecutionContext{
		Level:      LevelRoot,
		Auth:       auth,
		Parameters: map[string]value.Value{},
		Tx:         tx,
	}
}

func (c ExecutionContext) WithNamespace(ns string) ExecutionContext {
	next := c
	next.Namespace = ns
	next.Level = LevelNamespace
	return next
}

func (c ExecutionContext) WithDatabase(db string) ExecutionContext {
	next := c
	next.Database = db
	next.Level = LevelDatabase
	return next
}

// WithParameter returns a new context with name bound to v, copying the
// parameter map so sibling contexts sharing the parent are unaffected.
func (c ExecutionContext) WithParameter(name string, v value.Value) ExecutionContext {
	next := c
	next.Parameters = make(map[string]value.Value, len(c.Parameters)+1)
	for k, existing := range c.Parameters {
		next.Parameters[k] = existing
	}
	next.Parameters[name] = v
	return next
}

func (c ExecutionContext) WithTransaction(tx kv.Transactable) ExecutionContext {
	next := c
	next.Tx = tx
	return next
}

// Satisfies reports whether this context's level meets the operator's
// required minimum (a Database context satisfies a Namespace requirement).
func (c ExecutionContext) Satisfies(required Level) bool {
	return c.Level >= required
}

// Parameter looks up a bound parameter by name.
func (c ExecutionContext) Parameter(name string) (value.Value, bool) {
	v, ok := c.Parameters[name]
	return v, ok
}
