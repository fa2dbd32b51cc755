package resolver

import (
	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/rules"
	"github.com/latticedb/resolver/internal/schema"
)

// FieldRuleSpec is one column or object field's read/write rule pair, in
// un-prepared form, as loaded from configuration.
type FieldRuleSpec struct {
	Read  rules.Rule
	Write rules.Rule
}

// ArrayRuleSpec is one array field's add/remove rule pair.
type ArrayRuleSpec struct {
	Add    rules.Rule
	Remove rules.Rule
}

// TableRuleSpec is every rule attached to one declared table, in
// un-prepared form.
type TableRuleSpec struct {
	Read   rules.Rule
	Write  rules.Rule
	Create rules.Rule
	Delete rules.Rule
	Fields map[string]FieldRuleSpec
	Arrays map[string]ArrayRuleSpec
}

// fieldRules is one column or object field's compiled read/write rule pair.
type fieldRules struct {
	read  rules.Predicate
	write rules.Predicate
}

// arrayRules is one array field's compiled add/remove rule pair.
type arrayRules struct {
	add    rules.Predicate
	remove rules.Predicate
}

// tableRules is every compiled rule attached to one declared table.
type tableRules struct {
	read   rules.Predicate
	write  rules.Predicate
	create rules.Predicate
	delete rules.Predicate
	fields map[string]fieldRules
	arrays map[string]arrayRules
}

// Ruleset is the full compiled rule set for every declared table, shared
// read-only for the server's lifetime.
type Ruleset struct {
	tables map[string]tableRules
}

// CompileRules prepares every declared table's rule tree against the
// declared schema. Every declared table must appear in spec; the implicit
// rule for reservedId is none (see rules.None) — callers should declare it
// explicitly or rely on the field defaulting to deny-by-default when no
// field rule is present (handled by access control, not here).
func CompileRules(declared schema.DeclaredSchema, spec map[string]TableRuleSpec) (*Ruleset, error) {
	rs := &Ruleset{tables: make(map[string]tableRules, len(declared))}
	for tableName := range declared {
		tspec, ok := spec[tableName]
		if !ok {
			return nil, apperr.On(apperr.BadRequest, tableName, "", "no rules declared for table")
		}
		pc := rules.PrepareContext{Tables: declared, Table: tableName}
		compiled := tableRules{fields: map[string]fieldRules{}, arrays: map[string]arrayRules{}}

		var err error
		if compiled.read, err = prepareOrAllowAll(tspec.Read, pc); err != nil {
			return nil, err
		}
		if compiled.write, err = prepareOrAllowAll(tspec.Write, pc); err != nil {
			return nil, err
		}
		if compiled.create, err = prepareOrAllowAll(tspec.Create, pc); err != nil {
			return nil, err
		}
		if compiled.delete, err = prepareOrAllowAll(tspec.Delete, pc); err != nil {
			return nil, err
		}
		for field, fspec := range tspec.Fields {
			fr := fieldRules{}
			if fr.read, err = prepareOptional(fspec.Read, pc); err != nil {
				return nil, err
			}
			if fr.write, err = prepareOptional(fspec.Write, pc); err != nil {
				return nil, err
			}
			compiled.fields[field] = fr
		}
		for field, aspec := range tspec.Arrays {
			ar := arrayRules{}
			if ar.add, err = prepareOptional(aspec.Add, pc); err != nil {
				return nil, err
			}
			if ar.remove, err = prepareOptional(aspec.Remove, pc); err != nil {
				return nil, err
			}
			compiled.arrays[field] = ar
		}
		rs.tables[tableName] = compiled
	}
	return rs, nil
}

func prepareOrAllowAll(r rules.Rule, pc rules.PrepareContext) (rules.Predicate, error) {
	if r == nil {
		r = rules.All{}
	}
	return r.Prepare(pc)
}

func prepareOptional(r rules.Rule, pc rules.PrepareContext) (rules.Predicate, error) {
	if r == nil {
		return nil, nil
	}
	return r.Prepare(pc)
}
