package resolver

import (
	"context"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/plugin"
	"github.com/latticedb/resolver/internal/rules"
)

// evalCtx builds the rule evaluation context for one row/request pair. The
// exposed query helper runs inside the current transaction, read-only, as
// the resolving caller (never escalated to admin).
func (s *txState) evalCtx(ctx context.Context, object, request rules.Subject, requestFlag bool) *rules.EvalContext {
	return &rules.EvalContext{
		AuthID:      s.authID,
		PrivateKey:  s.server.PrivateKey,
		Object:      object,
		Request:     request,
		RequestFlag: requestFlag,
		Query: func(req map[string]any, admin, readOnly bool) (any, error) {
			return s.queryFn(ctx, req, admin, readOnly)
		},
	}
}

// checkTablePredicate runs one table-level predicate (read/write/create/
// delete) against a row (may be nil before a row exists, e.g. create).
func (s *txState) checkTablePredicate(ctx context.Context, pred rules.Predicate, subj rules.Subject, requestSubj rules.Subject) error {
	if pred == nil {
		return nil
	}
	return pred(s.evalCtx(ctx, subj, requestSubj, false))
}

// applyReadAccess enforces table-level read and per-field read rules on a
// resolved row set, silently stripping fields whose rule fails and
// dropping rows left with no passing field when the table itself denies.
func (s *txState) applyReadAccess(ctx context.Context, table string, rows []map[string]any, requestSubj rules.Subject, parent rules.Subject) ([]map[string]any, error) {
	if s.isAdmin {
		return rows, nil
	}
	tr, ok := s.server.Rules().tables[table]
	if !ok {
		return rows, nil
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		subj := newRowSubject(ctx, s, table, row, parent)
		tableErr := s.checkTablePredicate(ctx, tr.read, subj, requestSubj)

		kept := map[string]any{}
		for field, v := range row {
			if field == "reservedId" || field == "created" || field == "deleted" || field == "edited" {
				kept[field] = v
				continue
			}
			fr, hasFieldRule := tr.fields[field]
			var ferr error
			switch {
			case hasFieldRule && fr.read != nil:
				ferr = fr.read(s.evalCtx(ctx, subj, requestSubj, false))
			default:
				ferr = tableErr
			}
			if ferr == nil {
				kept[field] = v
			}
		}
		if len(kept) <= 1 { // only reservedId (or nothing) survived
			if _, hasID := kept["reservedId"]; hasID && len(kept) == 1 && tableErr != nil {
				continue
			}
		}
		out = append(out, kept)
	}
	return out, nil
}

// checkWriteAccess enforces table-level write and per-field write rules for
// a set of changed fields on one row, returning UNAUTHORIZED on first
// failure (write/create/add/remove never silently strip).
func (s *txState) checkWriteAccess(ctx context.Context, table string, fields map[string]any, subj rules.Subject, requestSubj rules.Subject) error {
	if s.isAdmin {
		return nil
	}
	tr, ok := s.server.Rules().tables[table]
	if !ok {
		return nil
	}
	tableErr := s.checkTablePredicate(ctx, tr.write, subj, requestSubj)
	for field := range fields {
		fr, hasFieldRule := tr.fields[field]
		var err error
		switch {
		case hasFieldRule && fr.write != nil:
			err = fr.write(s.evalCtx(ctx, subj, requestSubj, false))
		default:
			err = tableErr
		}
		if err != nil {
			return apperr.On(apperr.Unauthorized, table, field, "write denied: %s", err.Error())
		}
	}
	return nil
}

// checkCreateAccess enforces the table-level create rule against the
// about-to-be-created row, represented only by its request fields (no
// reservedId yet).
func (s *txState) checkCreateAccess(ctx context.Context, table string, req map[string]any) error {
	if s.isAdmin {
		return nil
	}
	tr, ok := s.server.Rules().tables[table]
	if !ok {
		return nil
	}
	requestSubj := &rules.MapSubject{Data: req}
	if err := s.checkTablePredicate(ctx, tr.create, requestSubj, requestSubj); err != nil {
		return apperr.On(apperr.Unauthorized, table, "", "create denied: %s", err.Error())
	}
	return nil
}

// checkDeleteAccess enforces the table-level delete rule, evaluated before
// the row is removed from storage.
func (s *txState) checkDeleteAccess(ctx context.Context, table string, subj rules.Subject, requestSubj rules.Subject) error {
	if s.isAdmin {
		return nil
	}
	tr, ok := s.server.Rules().tables[table]
	if !ok {
		return nil
	}
	if err := s.checkTablePredicate(ctx, tr.delete, subj, requestSubj); err != nil {
		return apperr.On(apperr.Unauthorized, table, "", "delete denied: %s", err.Error())
	}
	return nil
}

// checkArrayAccess enforces one array field's add/remove rule.
func (s *txState) checkArrayAccess(ctx context.Context, table, field string, isAdd bool, subj rules.Subject, requestSubj rules.Subject) error {
	if s.isAdmin {
		return nil
	}
	tr, ok := s.server.Rules().tables[table]
	if !ok {
		return nil
	}
	ar, ok := tr.arrays[field]
	if !ok {
		return nil
	}
	pred := ar.remove
	verb := "remove"
	if isAdd {
		pred, verb = ar.add, "add"
	}
	if pred == nil {
		return nil
	}
	if err := pred(s.evalCtx(ctx, subj, requestSubj, false)); err != nil {
		return apperr.On(apperr.Unauthorized, table, field, "%s denied: %s", verb, err.Error())
	}
	return nil
}

// applyTailPipeline runs the onResult hook and, for non-admin callers, read
// access control, which is the common final stage shared by every branch
// (create, get, update, delete) of the table pipeline.
func (s *txState) applyTailPipeline(ctx context.Context, table string, req map[string]any, rows []map[string]any, parent rules.Subject) ([]map[string]any, error) {
	if err := s.server.Dispatcher.Dispatch(ctx, plugin.OnResult, table, &plugin.Event{Table: table, Request: req, Rows: rows}); err != nil {
		return nil, err
	}
	requestSubj := &rules.MapSubject{Data: req, Up: parent, HasUp: parent != nil}
	return s.applyReadAccess(ctx, table, rows, requestSubj, parent)
}
