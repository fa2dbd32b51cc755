package resolver

import (
	"context"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/classify"
	"github.com/latticedb/resolver/internal/driver"
	"github.com/latticedb/resolver/internal/plugin"
	"github.com/latticedb/resolver/internal/rules"
	"github.com/latticedb/resolver/internal/schema"
)

// resolveTable executes the per-table pipeline for one sub-request,
// returning the rows it produced (possibly empty, never nil on success).
// parent is the Subject rule predicates should walk to via `parent`/`..`.
func (s *txState) resolveTable(ctx context.Context, table string, req map[string]any, parent rules.Subject) ([]map[string]any, error) {
	declared, ok := s.server.Declared[table]
	if !ok {
		return nil, apperr.New(apperr.BadRequest, "undeclared table %q", table)
	}
	if _, ok := s.server.Rules().tables[table]; !ok {
		return nil, apperr.On(apperr.BadRequest, table, "", "no compiled rules for table")
	}

	req = cloneRequest(req)

	// Step 1: format.
	if truthy(req["delete"]) {
		req["get"] = "*"
	}

	// Plugin onRequest.
	if err := s.server.Dispatcher.Dispatch(ctx, plugin.OnRequest, table, &plugin.Event{Table: table, Request: req}); err != nil {
		return nil, err
	}

	// Step 3: validate (skipped for admin).
	if !s.isAdmin {
		if err := validateRequest(declared, req); err != nil {
			return nil, err
		}
	}

	// Step 4: read-only gate.
	if s.readOnly && (truthy(req["create"]) || truthy(req["delete"])) {
		return []map[string]any{}, nil
	}

	classified, err := classify.Classify(declared, req)
	if err != nil {
		return nil, err
	}

	parentCtx := rules.MapSubject{Data: req, Up: parent, HasUp: parent != nil}

	// Step 5: resolve object references.
	objectIDs := map[string]any{}
	resolvedObjects := map[string]map[string]any{}
	for field, rawSub := range classified.Objects {
		f := declared.Fields[field]
		subReq, _ := rawSub.(map[string]any)
		rows, rerr := s.resolveTable(ctx, f.RefTable, subReq, &parentCtx)
		required := truthy(subReq["required"])
		if rerr != nil {
			if apperr.Is(rerr, apperr.NotFound) && !required {
				rows = nil
			} else {
				return nil, rerr
			}
		}
		switch {
		case len(rows) == 0:
			if required {
				return nil, apperr.On(apperr.NotFound, table, field, "required object reference resolved to no rows")
			}
		case len(rows) > 1:
			return nil, apperr.On(apperr.NotUnique, table, field, "object reference resolved to more than one row")
		default:
			resolvedObjects[field] = rows[0]
			objectIDs[field+"Id"] = rows[0][schema.ReservedIDColumn]
		}
	}

	isCreate := truthy(req["create"])

	// The row(s) this call produces are children of parent, the same
	// Subject this resolveTable call itself received — not of parentCtx,
	// which wraps this request and exists only to give step 5's object
	// pre-resolution something to chain from before any row exists.
	if isCreate {
		return s.resolveCreate(ctx, table, declared, req, classified, resolvedObjects, objectIDs, parent)
	}
	return s.resolveReadAndMutate(ctx, table, declared, req, classified, resolvedObjects, objectIDs, parent)
}

func (s *txState) resolveCreate(
	ctx context.Context, table string, declared *schema.DeclaredTable, req map[string]any,
	classified *classify.Result, resolvedObjects map[string]map[string]any, objectIDs map[string]any,
	parent rules.Subject,
) ([]map[string]any, error) {
	if err := s.checkCreateAccess(ctx, table, req); err != nil {
		return nil, err
	}

	row := map[string]any{}
	for field, v := range classified.Primitives {
		if _, isList := v.([]any); isList {
			return nil, apperr.On(apperr.BadRequest, table, field, "multi-create not allowed in a single sub-request")
		}
		row[field] = v
	}
	for field, id := range objectIDs {
		row[field] = id
	}

	ids, err := s.tx.Create(ctx, driver.CreateRequest{Table: table, Elements: []map[string]any{row}})
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "creating %s", table)
	}
	newID := ids[0]
	row[schema.ReservedIDColumn] = newID
	row["created"] = true

	// Array children: resolve (or create) each, then insert association rows.
	for field, rawSub := range classified.Arrays {
		f := declared.Fields[field]
		subReq, _ := rawSub.(map[string]any)
		childIDs, rerr := s.resolveChildIDs(ctx, f.RefTable, subReq, parent)
		if rerr != nil {
			return nil, rerr
		}
		if len(childIDs) == 0 {
			continue
		}
		assoc, ok := s.server.associationTable(table, field)
		if !ok {
			return nil, apperr.On(apperr.DatabaseError, table, field, "no association table for array field")
		}
		if err := s.insertAssociations(ctx, assoc, newID, childIDs); err != nil {
			return nil, err
		}
	}

	for field, obj := range resolvedObjects {
		row[field] = obj
	}

	s.cache.Add(table, newID, row)

	if err := s.server.Dispatcher.Dispatch(ctx, plugin.OnCreation, table, &plugin.Event{Table: table, Request: req, Rows: []map[string]any{row}}); err != nil {
		return nil, err
	}

	return s.applyTailPipeline(ctx, table, req, []map[string]any{row}, parent)
}

// resolveChildIDs resolves the reservedIds an array-field sub-request
// addresses, by get if it carries a constraint, or by create if it asks
// for new rows.
func (s *txState) resolveChildIDs(ctx context.Context, childTable string, subReq map[string]any, parent rules.Subject) ([]any, error) {
	if subReq == nil {
		return nil, nil
	}
	rows, err := s.resolveTable(ctx, childTable, withoutAssociationKeys(subReq), parent)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r[schema.ReservedIDColumn])
	}
	return ids, nil
}

// withoutAssociationKeys strips add/remove so a constraint-carrying array
// sub-request can be resolved as a plain get/create when used to find
// children to link, rather than re-interpreted as another add/remove.
func withoutAssociationKeys(req map[string]any) map[string]any {
	out := cloneRequest(req)
	delete(out, "add")
	delete(out, "remove")
	return out
}

func (s *txState) insertAssociations(ctx context.Context, assoc *schema.PhysicalTable, ownerID any, childIDs []any) error {
	elements := make([]map[string]any, 0, len(childIDs))
	for _, cid := range childIDs {
		elements = append(elements, map[string]any{"ownerTableId": ownerID, "fieldId": cid})
	}
	if len(elements) == 0 {
		return nil
	}
	if _, err := s.tx.Create(ctx, driver.CreateRequest{Table: assoc.Name, Elements: elements}); err != nil {
		return apperr.Wrap(apperr.DatabaseError, err, "linking %s", assoc.Name)
	}
	return nil
}

func (s *txState) removeAssociations(ctx context.Context, assoc *schema.PhysicalTable, ownerID any, childIDs []any) error {
	if len(childIDs) == 0 {
		return nil
	}
	return wrapDBErr(s.tx.Delete(ctx, driver.DeleteRequest{
		Table: assoc.Name,
		Where: driver.Where{"ownerTableId": ownerID, "fieldId": childIDs},
	}), assoc.Name)
}

func wrapDBErr(err error, table string) error {
	if err == nil {
		return nil
	}
	return apperr.Wrap(apperr.DatabaseError, err, "on %s", table)
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func cloneRequest(req map[string]any) map[string]any {
	out := make(map[string]any, len(req))
	for k, v := range req {
		out[k] = v
	}
	return out
}
