package resolver

import (
	"context"

	"github.com/latticedb/resolver/internal/cache"
	"github.com/latticedb/resolver/internal/driver"
	"github.com/latticedb/resolver/internal/plugin"
)

// txState is the mutable state shared by every sub-request resolved
// within one transaction. It is owned exclusively by one Resolve call.
type txState struct {
	server   *Server
	tx       driver.Transaction
	authID   any
	isAdmin  bool
	readOnly bool
	cache    *cache.Cache
	request  map[string]any

	queryFn func(ctx context.Context, req map[string]any, admin, readOnly bool) (any, error)
}

func (s *txState) pluginQueryFn() plugin.QueryFunc {
	return func(ctx context.Context, req map[string]any, admin, readOnly bool) (any, error) {
		return s.queryFn(ctx, req, admin, readOnly)
	}
}

// runTopLevel dispatches every top-level table key in req, in iteration
// (map) order per spec's sequential sibling-ordering guarantee approximated
// by Go's deterministic-enough single-threaded loop; each value is either
// one sub-request object or a list of them.
func (s *txState) runTopLevel(ctx context.Context, authID any, req map[string]any, readOnly bool) (map[string]any, error) {
	sub := &txState{
		server: s.server, tx: s.tx, authID: authID,
		isAdmin:  s.server.PrivateKey != nil && authID == s.server.PrivateKey,
		readOnly: readOnly || s.readOnly,
		cache:    s.cache, request: req, queryFn: s.queryFn,
	}

	out := make(map[string]any, len(req))
	for table, val := range req {
		if _, ok := s.server.Declared[table]; !ok {
			continue
		}
		switch v := val.(type) {
		case map[string]any:
			rows, err := sub.resolveTable(ctx, table, v, nil)
			if err != nil {
				return nil, err
			}
			out[table] = rows
		case []map[string]any:
			var all []map[string]any
			for _, item := range v {
				rows, err := sub.resolveTable(ctx, table, item, nil)
				if err != nil {
					return nil, err
				}
				all = append(all, rows...)
			}
			out[table] = all
		case []any:
			var all []map[string]any
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				rows, err := sub.resolveTable(ctx, table, m, nil)
				if err != nil {
					return nil, err
				}
				all = append(all, rows...)
			}
			out[table] = all
		}
	}
	return out, nil
}
