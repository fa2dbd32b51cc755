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

// resolveReadAndMutate handles every branch of the pipeline that is not a
// create: plain get, delete, set, and array add/remove, all of which start
// from a database query.
func (s *txState) resolveReadAndMutate(
	ctx context.Context, table string, declared *schema.DeclaredTable, req map[string]any,
	classified *classify.Result, resolvedObjects map[string]map[string]any, objectIDs map[string]any,
	parent rules.Subject,
) ([]map[string]any, error) {
	where := driver.Where{}
	for field, v := range classified.Primitives {
		where[field] = v
	}
	for field, id := range objectIDs {
		where[field] = id
	}
	if id, ok := req[schema.ReservedIDColumn]; ok {
		where[schema.ReservedIDColumn] = id
	}
	if hasEmptyArrayConstraint(classified.Primitives) {
		return s.applyTailPipeline(ctx, table, req, []map[string]any{}, parent)
	}

	search := classified.Search
	search = append(search, schema.ReservedIDColumn)
	for field := range objectIDs {
		search = append(search, field)
	}

	rows, err := s.lookupRows(ctx, table, search, where, req)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		for field, obj := range resolvedObjects {
			row[field] = obj
		}
	}

	// Step 7: array children.
	for field, rawSub := range classified.Arrays {
		f := declared.Fields[field]
		subReq, _ := rawSub.(map[string]any)
		if err := s.attachArrayChildren(ctx, table, field, f.RefTable, subReq, rows, parent); err != nil {
			return nil, err
		}
	}

	if err := s.server.Dispatcher.Dispatch(ctx, plugin.OnProcessing, table, &plugin.Event{Table: table, Request: req, Rows: rows}); err != nil {
		return nil, err
	}

	if truthy(req["delete"]) {
		return s.deleteRows(ctx, table, req, rows, parent)
	}

	if setVal, ok := req["set"]; ok {
		if setMap, ok := setVal.(map[string]any); ok && len(setMap) > 0 {
			if err := s.updateRows(ctx, table, declared, req, setMap, rows, parent); err != nil {
				return nil, err
			}
		}
	}

	for field, rawSub := range classified.Arrays {
		f := declared.Fields[field]
		subReq, _ := rawSub.(map[string]any)
		if subReq == nil {
			continue
		}
		if err := s.applyArrayEdits(ctx, table, field, f.RefTable, subReq, rows, parent); err != nil {
			return nil, err
		}
	}

	return s.applyTailPipeline(ctx, table, req, rows, parent)
}

func (s *txState) lookupRows(ctx context.Context, table string, search []string, where driver.Where, req map[string]any) ([]map[string]any, error) {
	if cached, ok := s.tryCache(table, where, search); ok {
		return cached, nil
	}

	limit := toInt(req["limit"])
	offset := toInt(req["offset"])
	order := parseOrderTerms(req["order"])

	rows, err := s.tx.Get(ctx, driver.GetRequest{
		Table: table, Search: search, Where: where, Limit: limit, Offset: offset, Order: order,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "reading %s", table)
	}
	for _, row := range rows {
		if id, ok := row[schema.ReservedIDColumn]; ok {
			s.cache.Add(table, id, row)
		}
	}
	return rows, nil
}

// tryCache serves a by-reservedId equality lookup from the request cache
// when every requested property is already cached for that row.
func (s *txState) tryCache(table string, where driver.Where, search []string) ([]map[string]any, bool) {
	id, ok := where[schema.ReservedIDColumn]
	if !ok || len(where) != 1 {
		return nil, false
	}
	row, ok := s.cache.Read(table, id, search)
	if !ok {
		return nil, false
	}
	return []map[string]any{row}, true
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

func parseOrderTerms(raw any) []driver.OrderTerm {
	var names []string
	switch v := raw.(type) {
	case string:
		names = []string{v}
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				names = append(names, s)
			}
		}
	case []string:
		names = v
	}
	terms := make([]driver.OrderTerm, 0, len(names))
	for _, n := range names {
		desc := false
		if len(n) > 0 && n[0] == '-' {
			desc = true
			n = n[1:]
		}
		terms = append(terms, driver.OrderTerm{Column: n, Desc: desc})
	}
	return terms
}

func hasEmptyArrayConstraint(primitives map[string]any) bool {
	for _, v := range primitives {
		if isEmptyArrayConstraint(v) {
			return true
		}
	}
	return false
}

func isEmptyArrayConstraint(v any) bool {
	if list, ok := v.([]any); ok {
		return len(list) == 0
	}
	return false
}

// attachArrayChildren populates row[field] for every row with the
// resolved children from the association table, honoring the sub-request's
// required flag by dropping owner rows with no matching children.
func (s *txState) attachArrayChildren(ctx context.Context, owner, field, childTable string, subReq map[string]any, rows []map[string]any, parent rules.Subject) error {
	assoc, ok := s.server.associationTable(owner, field)
	if !ok {
		return apperr.On(apperr.DatabaseError, owner, field, "no association table for array field")
	}
	required := truthy(subReq["required"])

	kept := rows[:0:0]
	for _, row := range rows {
		ownerID := row[schema.ReservedIDColumn]
		links, err := s.tx.Get(ctx, driver.GetRequest{
			Table: assoc.Name, Search: []string{"fieldId"},
			Where: driver.Where{"ownerTableId": ownerID},
		})
		if err != nil {
			return apperr.Wrap(apperr.DatabaseError, err, "reading %s", assoc.Name)
		}
		var children []map[string]any
		if len(links) > 0 {
			ids := make([]any, 0, len(links))
			for _, l := range links {
				ids = append(ids, l["fieldId"])
			}
			childReq := cloneRequest(subReq)
			childReq[schema.ReservedIDColumn] = ids
			rowSubj := newRowSubject(ctx, s, owner, row, parent)
			childRows, err := s.resolveTable(ctx, childTable, childReq, rowSubj)
			if err != nil && !apperr.Is(err, apperr.NotFound) {
				return err
			}
			children = childRows
		}
		if required && len(children) == 0 {
			continue
		}
		row[field] = children
		kept = append(kept, row)
	}
	copy(rows, kept)
	for i := len(kept); i < len(rows); i++ {
		rows[i] = nil
	}
	return nil
}

func (s *txState) deleteRows(ctx context.Context, table string, req map[string]any, rows []map[string]any, parent rules.Subject) ([]map[string]any, error) {
	requestSubj := &rules.MapSubject{Data: req, Up: parent, HasUp: parent != nil}
	for _, row := range rows {
		subj := newRowSubject(ctx, s, table, row, parent)
		if err := s.checkDeleteAccess(ctx, table, subj, requestSubj); err != nil {
			return nil, err
		}
	}
	for _, row := range rows {
		id := row[schema.ReservedIDColumn]
		if err := s.tx.Delete(ctx, driver.DeleteRequest{Table: table, Where: driver.Where{schema.ReservedIDColumn: id}}); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, err, "deleting %s", table)
		}
		s.cache.Uncache(table, id)
		row["deleted"] = true
	}
	if err := s.server.Dispatcher.Dispatch(ctx, plugin.OnDeletion, table, &plugin.Event{Table: table, Request: req, Rows: rows}); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *txState) updateRows(ctx context.Context, table string, declared *schema.DeclaredTable, req map[string]any, setMap map[string]any, rows []map[string]any, parent rules.Subject) error {
	requestSubj := &rules.MapSubject{Data: req, Up: parent, HasUp: parent != nil}
	setClassified, err := classify.Classify(declared, setMap)
	if err != nil {
		return err
	}

	values := map[string]any{}
	for field, v := range setClassified.Primitives {
		values[field] = v
	}
	newObjects := map[string]map[string]any{}
	for field, rawSub := range setClassified.Objects {
		f := declared.Fields[field]
		subReq, _ := rawSub.(map[string]any)
		children, rerr := s.resolveTable(ctx, f.RefTable, subReq, parent)
		if rerr != nil && !apperr.Is(rerr, apperr.NotFound) {
			return rerr
		}
		switch len(children) {
		case 0:
			return apperr.On(apperr.NotSettable, table, field, "set object reference resolved to no rows")
		case 1:
			values[field+"Id"] = children[0][schema.ReservedIDColumn]
			newObjects[field] = children[0]
		default:
			return apperr.On(apperr.NotUnique, table, field, "set object reference resolved to more than one row")
		}
	}

	if len(values) == 0 {
		return nil
	}

	for _, row := range rows {
		subj := newRowSubject(ctx, s, table, row, parent)
		if err := s.checkWriteAccess(ctx, table, values, subj, requestSubj); err != nil {
			return err
		}
	}

	oldValues := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		old := map[string]any{}
		for field := range values {
			old[field] = row[field]
		}
		oldValues = append(oldValues, old)

		id := row[schema.ReservedIDColumn]
		if err := s.tx.Update(ctx, driver.UpdateRequest{Table: table, Values: values, Where: driver.Where{schema.ReservedIDColumn: id}}); err != nil {
			return apperr.Wrap(apperr.DatabaseError, err, "updating %s", table)
		}
		for field, v := range values {
			row[field] = v
		}
		for field, obj := range newObjects {
			row[field] = obj
		}
		row["edited"] = true
		s.cache.Add(table, id, row)
	}

	return s.server.Dispatcher.Dispatch(ctx, plugin.OnUpdate, table, &plugin.Event{
		Table: table, Request: req, Rows: rows,
		Extra: map[string]any{"oldValues": oldValues, "newValues": values},
	})
}

func (s *txState) applyArrayEdits(ctx context.Context, owner, field, childTable string, subReq map[string]any, rows []map[string]any, parent rules.Subject) error {
	requestSubj := &rules.MapSubject{Data: subReq}

	removeIDs, err := s.resolveEditTargets(ctx, childTable, subReq["remove"], parent)
	if err != nil {
		return err
	}
	addIDs, err := s.resolveEditTargets(ctx, childTable, subReq["add"], parent)
	if err != nil {
		return err
	}
	if len(removeIDs) == 0 && len(addIDs) == 0 {
		return nil
	}

	assoc, ok := s.server.associationTable(owner, field)
	if !ok {
		return apperr.On(apperr.DatabaseError, owner, field, "no association table for array field")
	}

	for _, row := range rows {
		subj := newRowSubject(ctx, s, owner, row, parent)
		ownerID := row[schema.ReservedIDColumn]
		if len(removeIDs) > 0 {
			if err := s.checkArrayAccess(ctx, owner, field, false, subj, requestSubj); err != nil {
				return err
			}
			if err := s.removeAssociations(ctx, assoc, ownerID, removeIDs); err != nil {
				return err
			}
		}
		if len(addIDs) > 0 {
			if err := s.checkArrayAccess(ctx, owner, field, true, subj, requestSubj); err != nil {
				return err
			}
			if err := s.insertAssociations(ctx, assoc, ownerID, addIDs); err != nil {
				return err
			}
		}
	}

	return s.server.Dispatcher.Dispatch(ctx, plugin.OnListUpdate, owner, &plugin.Event{
		Table: owner, Request: subReq, Rows: rows,
		Extra: map[string]any{"added": addIDs, "removed": removeIDs},
	})
}

func (s *txState) resolveEditTargets(ctx context.Context, childTable string, raw any, parent rules.Subject) ([]any, error) {
	if raw == nil {
		return nil, nil
	}
	subReq, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.On(apperr.BadRequest, childTable, "", "add/remove must be an object")
	}
	return s.resolveChildIDs(ctx, childTable, subReq, parent)
}
