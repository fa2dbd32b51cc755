// Package resolver implements the Request Resolver and Table Resolver: the
// transactional engine that classifies a nested request against a prepared
// schema, walks it through the per-table pipeline, enforces access rules,
// and invokes plugin lifecycle hooks.
package resolver

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/cache"
	"github.com/latticedb/resolver/internal/driver"
	"github.com/latticedb/resolver/internal/plugin"
	"github.com/latticedb/resolver/internal/schema"
)

type inTxKey struct{}

// Server is the prepared, immutable-after-startup engine: physical model,
// compiled rules, and plugin dispatcher, plus the live driver and the
// per-database FIFO queue serializing top-level requests.
type Server struct {
	Model      schema.PhysicalModel
	Declared   schema.DeclaredSchema
	Dispatcher *plugin.Dispatcher
	Driver     driver.Driver
	PrivateKey any

	// queue serializes top-level (non-reentrant) requests against this
	// database, per spec's per-database FIFO requirement: a weighted
	// semaphore of weight 1 gives deterministic commit ordering for
	// concurrent admin workflows without a custom queue implementation.
	queue *semaphore.Weighted

	// rules is swapped wholesale by SetRules (config's fsnotify-driven
	// rules.yaml hot reload); mu guards it against the concurrent requests
	// that read it via Rules().
	mu    sync.RWMutex
	rules *Ruleset
}

// New constructs a Server from an already-prepared physical model and
// compiled ruleset.
func New(model schema.PhysicalModel, declared schema.DeclaredSchema, rs *Ruleset, dispatcher *plugin.Dispatcher, d driver.Driver, privateKey any) *Server {
	return &Server{
		Model:      model,
		Declared:   declared,
		rules:      rs,
		Dispatcher: dispatcher,
		Driver:     d,
		PrivateKey: privateKey,
		queue:      semaphore.NewWeighted(1),
	}
}

// Rules returns the currently active compiled ruleset. Safe for concurrent
// use with SetRules.
func (s *Server) Rules() *Ruleset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// SetRules atomically swaps the compiled ruleset, e.g. after config's
// rules.yaml watcher reloads and recompiles it. In-flight requests keep
// using the ruleset they already loaded via Rules(); only subsequent
// requests see the new one.
func (s *Server) SetRules(rs *Ruleset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rs
}

// Resolve runs one top-level request to completion: it opens a transaction,
// dispatches every top-level table key to the Table Resolver in iteration
// order, runs onSuccess/commits on success or onError/rolls back on
// failure, and returns the response mirroring the request's top-level
// shape. A re-entrant top-level call (one already running inside this
// goroutine's call stack) is rejected; nested queries from rules/plugins
// must go through Query instead.
func (s *Server) Resolve(ctx context.Context, authID any, req map[string]any) (map[string]any, error) {
	return s.resolve(ctx, authID, req, false)
}

// ResolveAdmin runs req with authID implicitly equal to the server's
// privateKey, bypassing access control.
func (s *Server) ResolveAdmin(ctx context.Context, req map[string]any) (map[string]any, error) {
	return s.resolve(ctx, s.PrivateKey, req, false)
}

func (s *Server) resolve(ctx context.Context, authID any, req map[string]any, readOnly bool) (map[string]any, error) {
	if ctx.Value(inTxKey{}) != nil {
		return nil, apperr.New(apperr.BadRequest, "reentrant top-level request; use the query helper instead")
	}

	if err := s.queue.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "acquiring per-database request queue")
	}
	defer s.queue.Release(1)

	ctx = context.WithValue(ctx, inTxKey{}, true)

	tx, err := s.Driver.StartTransaction(ctx)
	if err != nil {
		return nil, err
	}

	state := &txState{
		server:   s,
		tx:       tx,
		authID:   authID,
		isAdmin:  s.PrivateKey != nil && authID == s.PrivateKey,
		readOnly: readOnly,
		cache:    cache.New(),
		request:  req,
	}
	state.queryFn = func(ctx context.Context, subReq map[string]any, admin, subReadOnly bool) (any, error) {
		subAuth := authID
		if admin {
			subAuth = s.PrivateKey
		}
		return state.runTopLevel(ctx, subAuth, subReq, subReadOnly)
	}

	results, runErr := state.runTopLevel(ctx, authID, req, readOnly)
	meta := plugin.RequestMeta{Request: req, IsAdmin: state.isAdmin, Query: state.pluginQueryFn()}

	if runErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			// Rollback errors are caught and logged but never mask the
			// original failure.
			log.Printf("resolver: rollback after request error: %v", rbErr)
		}
		s.Dispatcher.RunOnError(ctx, runErr, meta)
		return nil, runErr
	}

	if err := s.Dispatcher.RunOnSuccess(ctx, results, meta); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Printf("resolver: rollback after onSuccess error: %v", rbErr)
		}
		s.Dispatcher.RunOnError(ctx, err, meta)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// associationTable finds the synthesized physical table for an array
// field declared on owner, if one exists.
func (s *Server) associationTable(owner, field string) (*schema.PhysicalTable, bool) {
	for _, t := range s.Model {
		if t.Association != nil && t.Association.OwnerTable == owner && t.Association.Field == field {
			return t, true
		}
	}
	return nil, false
}
