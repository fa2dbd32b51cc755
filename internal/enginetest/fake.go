// Package enginetest provides an in-memory driver.Driver used by resolver
// package tests so the pipeline can be exercised without a real database.
package enginetest

import (
	"context"
	"sort"
	"sync"

	"github.com/latticedb/resolver/internal/driver"
)

// Driver is a trivial in-memory implementation of driver.Driver: every
// table is a slice of rows, reservedIds are assigned sequentially, and
// Where matching mirrors the equality/OR/operator semantics of a real
// backend closely enough to exercise the resolver pipeline.
type Driver struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	nextID int64
}

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{tables: make(map[string][]map[string]any), nextID: 1}
}

func (d *Driver) StartTransaction(ctx context.Context) (driver.Transaction, error) {
	return &tx{d: d}, nil
}

func (d *Driver) CreateTable(ctx context.Context, table string, columns any, index any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[table]; !ok {
		d.tables[table] = nil
	}
	return nil
}

func (d *Driver) ProcessTable(ctx context.Context, table string, columns any) error { return nil }

func (d *Driver) CreateForeignKeys(ctx context.Context, foreignKeys map[string]any) error {
	return nil
}

func (d *Driver) Destroy(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = make(map[string][]map[string]any)
	return nil
}

// tx is a no-op transaction wrapper: the fake driver commits writes
// immediately, since tests only assert on end states, never on
// rollback-vs-commit visibility of uncommitted rows.
type tx struct {
	d        *Driver
	rollback bool
}

func (t *tx) Commit(ctx context.Context) error   { return nil }
func (t *tx) Rollback(ctx context.Context) error { t.rollback = true; return nil }

func (t *tx) Get(ctx context.Context, req driver.GetRequest) ([]map[string]any, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()

	var out []map[string]any
	for _, row := range t.d.tables[req.Table] {
		if matchesWhere(row, req.Where) {
			out = append(out, project(row, req.Search))
		}
	}
	if len(req.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, term := range req.Order {
				cmp := compare(out[i][term.Column], out[j][term.Column])
				if cmp == 0 {
					continue
				}
				if term.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	if req.Offset > 0 {
		if req.Offset >= len(out) {
			return []map[string]any{}, nil
		}
		out = out[req.Offset:]
	}
	if req.Limit > 0 && req.Limit < len(out) {
		out = out[:req.Limit]
	}
	return out, nil
}

func (t *tx) Create(ctx context.Context, req driver.CreateRequest) ([]any, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()

	ids := make([]any, 0, len(req.Elements))
	for _, el := range req.Elements {
		row := map[string]any{}
		for k, v := range el {
			row[k] = v
		}
		if _, ok := row["reservedId"]; !ok {
			row["reservedId"] = t.d.nextID
			t.d.nextID++
		}
		t.d.tables[req.Table] = append(t.d.tables[req.Table], row)
		ids = append(ids, row["reservedId"])
	}
	return ids, nil
}

func (t *tx) Update(ctx context.Context, req driver.UpdateRequest) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()

	for _, row := range t.d.tables[req.Table] {
		if matchesWhere(row, req.Where) {
			for k, v := range req.Values {
				row[k] = v
			}
		}
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, req driver.DeleteRequest) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()

	kept := t.d.tables[req.Table][:0]
	for _, row := range t.d.tables[req.Table] {
		if !matchesWhere(row, req.Where) {
			kept = append(kept, row)
		}
	}
	t.d.tables[req.Table] = kept
	return nil
}

func project(row map[string]any, search []string) map[string]any {
	if len(search) == 0 {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(search))
	seen := map[string]bool{}
	for _, s := range search {
		if seen[s] {
			continue
		}
		seen[s] = true
		out[s] = row[s]
	}
	return out
}

func matchesWhere(row map[string]any, where driver.Where) bool {
	for col, constraint := range where {
		if !matchesConstraint(row[col], constraint) {
			return false
		}
	}
	return true
}

func matchesConstraint(v, constraint any) bool {
	switch c := constraint.(type) {
	case []any:
		for _, e := range c {
			if equalValue(v, e) {
				return true
			}
		}
		return false
	case map[string]any:
		for op, operand := range c {
			if !matchesOperator(v, driver.Operator(op), operand) {
				return false
			}
		}
		return true
	default:
		return equalValue(v, c)
	}
}

func matchesOperator(v any, op driver.Operator, operand any) bool {
	switch op {
	case driver.OpNot:
		return !equalValue(v, operand)
	case driver.OpLike:
		return true // fake driver does not implement pattern matching
	case driver.OpGT:
		return compare(v, operand) > 0
	case driver.OpGE:
		return compare(v, operand) >= 0
	case driver.OpLT:
		return compare(v, operand) < 0
	case driver.OpLE:
		return compare(v, operand) <= 0
	default:
		return false
	}
}

func equalValue(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func compare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
