// Package rules implements the access-control Rule Engine: combinators
// that compile into predicates evaluated against a request/object context.
package rules

import (
	"fmt"

	"github.com/latticedb/resolver/internal/schema"
)

// EvalContext is the evaluation context a compiled Predicate runs against.
type EvalContext struct {
	AuthID      any
	PrivateKey  any
	Object      Subject
	Request     Subject
	RequestFlag bool
	Query       QueryFunc
}

// QueryFunc is the `query` helper exposed to rule bodies and plugins: it
// runs a sub-request inside the current transaction, optionally as admin
// and/or read-only, bypassing the re-entrancy latch.
type QueryFunc func(request map[string]any, admin, readOnly bool) (any, error)

func (c *EvalContext) target() Subject {
	if c.RequestFlag {
		return c.Request
	}
	return c.Object
}

// Predicate is the compiled form of a Rule: it succeeds silently or fails
// with a reason.
type Predicate func(ctx *EvalContext) error

// PrepareContext is what a Rule's factory stage receives: the declared
// schema and the name of the table the rule is attached to.
type PrepareContext struct {
	Tables schema.DeclaredSchema
	Table  string
}

// Rule is the two-stage factory every combinator implements: at
// preparation time it receives (tables, tableName) and returns a Predicate.
type Rule interface {
	Prepare(pc PrepareContext) (Predicate, error)
}

// All always succeeds.
type All struct{}

func (All) Prepare(PrepareContext) (Predicate, error) {
	return func(*EvalContext) error { return nil }, nil
}

// None always fails unless authId == privateKey.
type None struct{}

func (None) Prepare(PrepareContext) (Predicate, error) {
	return func(ctx *EvalContext) error {
		if ctx.PrivateKey != nil && valuesEqual(ctx.AuthID, ctx.PrivateKey) {
			return nil
		}
		return fmt.Errorf("none: denied")
	}, nil
}

// And sequences sub-rules, failing on the first failure.
type And struct{ Rules []Rule }

func (a And) Prepare(pc PrepareContext) (Predicate, error) {
	preds, err := prepareAll(a.Rules, pc)
	if err != nil {
		return nil, err
	}
	return func(ctx *EvalContext) error {
		for _, p := range preds {
			if err := p(ctx); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// Or succeeds if any sub-rule succeeds.
type Or struct{ Rules []Rule }

func (o Or) Prepare(pc PrepareContext) (Predicate, error) {
	preds, err := prepareAll(o.Rules, pc)
	if err != nil {
		return nil, err
	}
	return func(ctx *EvalContext) error {
		var last error
		for _, p := range preds {
			if err := p(ctx); err == nil {
				return nil
			} else {
				last = err
			}
		}
		if last == nil {
			return fmt.Errorf("or: no rules to satisfy")
		}
		return fmt.Errorf("or: all branches failed, last: %w", last)
	}, nil
}

// Not succeeds iff the wrapped rule fails.
type Not struct{ Rule Rule }

func (n Not) Prepare(pc PrepareContext) (Predicate, error) {
	inner, err := n.Rule.Prepare(pc)
	if err != nil {
		return nil, err
	}
	return func(ctx *EvalContext) error {
		if inner(ctx) == nil {
			return fmt.Errorf("not: wrapped rule succeeded")
		}
		return nil
	}, nil
}

// RequestMode evaluates the wrapped rule against the request itself rather
// than the database object, setting requestFlag.
type RequestMode struct{ Rule Rule }

func (r RequestMode) Prepare(pc PrepareContext) (Predicate, error) {
	inner, err := r.Rule.Prepare(pc)
	if err != nil {
		return nil, err
	}
	return func(ctx *EvalContext) error {
		sub := *ctx
		sub.RequestFlag = true
		return inner(&sub)
	}, nil
}

// Is succeeds iff the entity/object addressed by Path has
// reservedId == authId.
type Is struct{ Path string }

func (r Is) Prepare(PrepareContext) (Predicate, error) {
	return func(ctx *EvalContext) error {
		v, err := resolvePath(ctx.target(), r.Path)
		if err != nil {
			return err
		}
		sub, ok := v.(Subject)
		if !ok {
			return fmt.Errorf("is(%s): target is not a single object", r.Path)
		}
		id, ok := sub.ReservedID()
		if !ok {
			return fmt.Errorf("is(%s): target has no reservedId", r.Path)
		}
		if !valuesEqual(id, ctx.AuthID) {
			return fmt.Errorf("is(%s): reservedId does not match authId", r.Path)
		}
		return nil
	}, nil
}

// Member succeeds iff authId appears among the reservedIds of the list
// addressed by Path.
type Member struct{ Path string }

func (r Member) Prepare(PrepareContext) (Predicate, error) {
	return func(ctx *EvalContext) error {
		list, err := resolvePathList(ctx.target(), r.Path)
		if err != nil {
			return err
		}
		for _, s := range list {
			if id, ok := s.ReservedID(); ok && valuesEqual(id, ctx.AuthID) {
				return nil
			}
		}
		return fmt.Errorf("member(%s): authId not present", r.Path)
	}, nil
}

// CountSpec is the {amount?|min?|max?} argument to Count.
type CountSpec struct {
	Amount *int
	Min    *int
	Max    *int
}

// Count succeeds iff the list addressed by Path has a length matching Spec.
// Amount is exclusive of Min/Max.
type Count struct {
	Path string
	Spec CountSpec
}

func (r Count) Prepare(PrepareContext) (Predicate, error) {
	if r.Spec.Amount != nil && (r.Spec.Min != nil || r.Spec.Max != nil) {
		return nil, fmt.Errorf("count(%s): amount is exclusive of min/max", r.Path)
	}
	return func(ctx *EvalContext) error {
		list, err := resolvePathList(ctx.target(), r.Path)
		if err != nil {
			return err
		}
		n := len(list)
		if r.Spec.Amount != nil {
			if n != *r.Spec.Amount {
				return fmt.Errorf("count(%s): want %d, got %d", r.Path, *r.Spec.Amount, n)
			}
			return nil
		}
		if r.Spec.Min != nil && n < *r.Spec.Min {
			return fmt.Errorf("count(%s): want >= %d, got %d", r.Path, *r.Spec.Min, n)
		}
		if r.Spec.Max != nil && n > *r.Spec.Max {
			return fmt.Errorf("count(%s): want <= %d, got %d", r.Path, *r.Spec.Max, n)
		}
		return nil
	}, nil
}

// IsEqual succeeds iff the field addressed by Path equals Value. Dates are
// compared by timestamp.
type IsEqual struct {
	Path  string
	Value any
}

func (r IsEqual) Prepare(PrepareContext) (Predicate, error) {
	return func(ctx *EvalContext) error {
		v, err := resolvePath(ctx.target(), r.Path)
		if err != nil {
			return err
		}
		if _, isSubject := v.(Subject); isSubject {
			return fmt.Errorf("isEqual(%s): target is an object, not a scalar field", r.Path)
		}
		if !valuesEqual(v, r.Value) {
			return fmt.Errorf("isEqual(%s): value mismatch", r.Path)
		}
		return nil
	}, nil
}

func prepareAll(rules []Rule, pc PrepareContext) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(rules))
	for _, r := range rules {
		p, err := r.Prepare(pc)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}
