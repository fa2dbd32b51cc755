package resolver

import (
	"context"

	"github.com/latticedb/resolver/internal/driver"
	"github.com/latticedb/resolver/internal/rules"
	"github.com/latticedb/resolver/internal/schema"
)

// rowSubject adapts one resolved database row (plus its already-resolved
// object/array fields) to rules.Subject, so the rule engine can walk
// `is`/`member`/`count`/`isEqual` paths against it without knowing
// anything about the resolver's row representation.
//
// A rule may reference a field the enclosing request never projected (a
// `parent.participants` membership check on a row the client only asked
// for by `get:"*"`, which expands primitives only). Field falls back to a
// direct, uncached lookup through tx for exactly that case, so rule
// evaluation never depends on what the caller happened to request.
type rowSubject struct {
	ctx    context.Context
	tx     *txState
	table  string
	data   map[string]any // primitive values + resolved object/array fields
	parent rules.Subject
}

func newRowSubject(ctx context.Context, tx *txState, table string, data map[string]any, parent rules.Subject) *rowSubject {
	return &rowSubject{ctx: ctx, tx: tx, table: table, data: data, parent: parent}
}

func (s *rowSubject) ReservedID() (any, bool) {
	v, ok := s.data["reservedId"]
	return v, ok
}

// Field returns the raw scalar for a primitive column, or wraps a
// resolved object/array reference on the fly: row data stores plain
// map[string]any / []map[string]any (so it still marshals directly as an
// API response), and Field adapts it to rules.Subject / []rules.Subject
// here, the one place the rule engine's path walker looks at it. A field
// absent from data is lazily fetched from the database before giving up.
func (s *rowSubject) Field(name string) (any, bool) {
	v, ok := s.data[name]
	if !ok {
		loaded, ok := s.lazyLoad(name)
		if !ok {
			return nil, false
		}
		s.data[name] = loaded
		v = loaded
	}
	switch val := v.(type) {
	case map[string]any:
		return newRowSubject(s.ctx, s.tx, s.refTable(name), val, s), true
	case []map[string]any:
		childTable := s.refTable(name)
		list := make([]rules.Subject, len(val))
		for i, row := range val {
			list[i] = newRowSubject(s.ctx, s.tx, childTable, row, s)
		}
		return list, true
	default:
		return v, true
	}
}

// refTable resolves the schema table a reference field named name points
// to, falling back to the field name itself when the schema can't be
// consulted (e.g. a subject built outside a live transaction in a test).
func (s *rowSubject) refTable(name string) string {
	if s.tx == nil {
		return name
	}
	declared, ok := s.tx.server.Declared[s.table]
	if !ok {
		return name
	}
	f, ok := declared.Fields[name]
	if !ok || f.RefTable == "" {
		return name
	}
	return f.RefTable
}

// lazyLoad resolves a field the row's own request projection skipped,
// directly against the transaction, bypassing access control: it only
// ever feeds rule evaluation, never the response the caller sees.
func (s *rowSubject) lazyLoad(name string) (any, bool) {
	if s.tx == nil {
		return nil, false
	}
	declared, ok := s.tx.server.Declared[s.table]
	if !ok {
		return nil, false
	}
	f, ok := declared.Fields[name]
	if !ok {
		return nil, false
	}
	id, ok := s.data[schema.ReservedIDColumn]
	if !ok {
		return nil, false
	}

	switch f.Kind {
	case schema.FieldColumn:
		rows, err := s.tx.tx.Get(s.ctx, driver.GetRequest{
			Table: s.table, Search: []string{name}, Where: driver.Where{schema.ReservedIDColumn: id},
		})
		if err != nil || len(rows) == 0 {
			return nil, false
		}
		return rows[0][name], true

	case schema.FieldObject:
		rows, err := s.tx.tx.Get(s.ctx, driver.GetRequest{
			Table: s.table, Search: []string{name + "Id"}, Where: driver.Where{schema.ReservedIDColumn: id},
		})
		if err != nil || len(rows) == 0 || rows[0][name+"Id"] == nil {
			return nil, false
		}
		return map[string]any{schema.ReservedIDColumn: rows[0][name+"Id"]}, true

	case schema.FieldArray:
		assoc, ok := s.tx.server.associationTable(s.table, name)
		if !ok {
			return nil, false
		}
		links, err := s.tx.tx.Get(s.ctx, driver.GetRequest{
			Table: assoc.Name, Search: []string{"fieldId"}, Where: driver.Where{"ownerTableId": id},
		})
		if err != nil {
			return nil, false
		}
		out := make([]map[string]any, len(links))
		for i, l := range links {
			out[i] = map[string]any{schema.ReservedIDColumn: l["fieldId"]}
		}
		return out, true

	default:
		return nil, false
	}
}

func (s *rowSubject) Parent() (rules.Subject, bool) {
	if s.parent == nil {
		return nil, false
	}
	return s.parent, true
}
