// Package plugin implements the lifecycle-hook contract the resolver
// exposes to user-defined extensions, and a priority-ordered sequential
// dispatcher for the table-scoped callback phases.
package plugin

import (
	"context"

	"github.com/latticedb/resolver/internal/schema"
)

// Phase is one of the fixed points in the table resolver pipeline at
// which table-scoped callbacks run.
type Phase string

const (
	OnRequest    Phase = "onRequest"
	OnProcessing Phase = "onProcessing"
	OnResult     Phase = "onResult"
	OnCreation   Phase = "onCreation"
	OnDeletion   Phase = "onDeletion"
	OnUpdate     Phase = "onUpdate"
	OnListUpdate Phase = "onListUpdate"
)

// Event is what a table-scoped callback receives. Request is the live
// sub-request map; callbacks may mutate it in place, which is the
// intended extension point (e.g. the contact-handshake plugin rewriting
// the counterpart's invited list). Rows and Extra carry phase-specific
// payload: Rows is the resolved/created/deleted row set, Extra carries
// e.g. {oldValues, newValues} for OnUpdate or {added, removed} for
// OnListUpdate.
type Event struct {
	Table   string
	Request map[string]any
	Rows    []map[string]any
	Extra   map[string]any
}

// Callback is one table-scoped hook function. Returning an error aborts
// the enclosing transaction.
type Callback func(ctx context.Context, evt *Event) error

// QueryFunc lets a plugin run a sub-request inside the current
// transaction, optionally as admin and/or read-only.
type QueryFunc func(ctx context.Context, request map[string]any, admin, readOnly bool) (any, error)

// RequestMeta is the context object onSuccess/onError hooks receive.
type RequestMeta struct {
	Request map[string]any
	Query   QueryFunc
	Local   map[string]any
	IsAdmin bool
}

// Middleware adapts a request at entry, before classification; opaque to
// the core beyond being run and its (possibly modified) request used.
type Middleware func(ctx context.Context, request map[string]any) (map[string]any, error)

// ErrorHandler is run in place of the default error propagation when a
// plugin declares one; opaque to the core.
type ErrorHandler func(ctx context.Context, err error) error

// Plugin is one registrable extension. Priority controls dispatch order
// across plugins within a phase (lower runs first); callbacks default to
// priority 0 (dispatcher registration order breaks remaining ties).
type Plugin struct {
	Name         string
	Priority     int
	PreRequisite func(tables schema.DeclaredSchema) error
	Middleware   Middleware
	ErrorHandler ErrorHandler

	// Callbacks maps phase -> table name -> callback.
	Callbacks map[Phase]map[string]Callback

	OnSuccess func(ctx context.Context, results map[string]any, meta RequestMeta) error
	OnError   func(ctx context.Context, failure error, meta RequestMeta) error
}

func (p *Plugin) callbackFor(phase Phase, table string) (Callback, bool) {
	byTable, ok := p.Callbacks[phase]
	if !ok {
		return nil, false
	}
	cb, ok := byTable[table]
	return cb, ok
}
