// Package classify splits a per-table request fragment into primitive
// constraints, object-reference sub-requests, array-reference sub-requests,
// and a projection ("get") list, expanding "get: '*'" and promoting bare
// get-mentions of reference fields into sub-requests.
package classify

import (
	"sort"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/schema"
)

// instructionKeys are request keys the classifier never treats as a field
// constraint; the table resolver interprets them directly.
var instructionKeys = map[string]bool{
	"get": true, "set": true, "create": true, "delete": true,
	"add": true, "remove": true, "limit": true, "offset": true,
	"order": true, "required": true, "reservedId": true,
}

// Result is the output of Classify: the split view of one per-table request.
type Result struct {
	// Primitives maps primitive column name -> the constraint value found
	// as a top-level request key (equality, array-OR, or operator object).
	Primitives map[string]any
	// Objects maps object-reference field name -> its sub-request (an
	// object), including any promoted from a bare get-mention.
	Objects map[string]any
	// Arrays maps array-reference field name -> its sub-request (an
	// object carrying get/add/remove/constraints), including any promoted
	// from a bare get-mention.
	Arrays map[string]any
	// Search is the fully expanded list of primitive column names to
	// project, in a deterministic (sorted) order.
	Search []string
}

// Classify splits req against table's declared fields. req's instruction
// keys (set, create, delete, add, remove, limit, offset, order, required,
// reservedId) are left for the caller to interpret directly; get is fully
// consumed here.
func Classify(table *schema.DeclaredTable, req map[string]any) (*Result, error) {
	res := &Result{
		Primitives: map[string]any{},
		Objects:    map[string]any{},
		Arrays:     map[string]any{},
	}

	getAll, explicitGet, err := normalizeGet(req["get"])
	if err != nil {
		return nil, err
	}

	searchSet := map[string]bool{}
	if getAll {
		for name, f := range table.Fields {
			if f.Kind == schema.FieldColumn {
				searchSet[name] = true
			}
		}
	}
	for _, name := range explicitGet {
		f, ok := table.Fields[name]
		if !ok {
			return nil, apperr.On(apperr.BadRequest, table.TableName, name, "get names an undeclared field")
		}
		switch f.Kind {
		case schema.FieldColumn:
			searchSet[name] = true
		case schema.FieldObject, schema.FieldArray:
			if _, constrained := req[name]; constrained {
				return nil, apperr.On(apperr.BadRequest, table.TableName, name,
					"field appears both in get and as a top-level constraint")
			}
			switch f.Kind {
			case schema.FieldObject:
				res.Objects[name] = map[string]any{"get": "*"}
			case schema.FieldArray:
				res.Arrays[name] = map[string]any{"get": "*"}
			}
		}
	}
	// A primitive explicitly named in get must not also carry a top-level
	// constraint value under the same key.
	for name := range searchSet {
		if _, constrained := req[name]; constrained && !getAll {
			return nil, apperr.On(apperr.BadRequest, table.TableName, name,
				"field appears both in get and as a top-level constraint")
		}
	}

	for key, val := range req {
		if instructionKeys[key] {
			continue
		}
		if _, already := res.Objects[key]; already {
			continue
		}
		if _, already := res.Arrays[key]; already {
			continue
		}
		f, ok := table.Fields[key]
		if !ok {
			return nil, apperr.On(apperr.BadRequest, table.TableName, key, "request names an undeclared field")
		}
		switch f.Kind {
		case schema.FieldColumn:
			res.Primitives[key] = val
		case schema.FieldObject:
			res.Objects[key] = val
		case schema.FieldArray:
			res.Arrays[key] = val
		}
	}

	res.Search = make([]string, 0, len(searchSet))
	for name := range searchSet {
		res.Search = append(res.Search, name)
	}
	sort.Strings(res.Search)

	return res, nil
}

// normalizeGet reduces req's "get" value to (all primitives requested,
// explicit field-name list). A bare string is a single field name unless
// it is "*".
func normalizeGet(raw any) (bool, []string, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil, nil
	case string:
		if v == "*" {
			return true, nil, nil
		}
		return false, []string{v}, nil
	case []string:
		return false, v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return false, nil, apperr.New(apperr.BadRequest, "get list must contain only field names")
			}
			out = append(out, s)
		}
		return false, out, nil
	default:
		return false, nil, apperr.New(apperr.BadRequest, "get must be '*', a field name, or a list of field names")
	}
}

// IsEmpty reports whether v is JSON null/undefined, i.e. the Go zero value
// nil. Only nil counts as empty; zero-valued primitives (0, "", false) do
// not.
func IsEmpty(v any) bool {
	return v == nil
}
