package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/resolver"
	"github.com/latticedb/resolver/internal/rules"
)

// ruleNode is the generic YAML shape one rule expression takes: exactly one
// of these keys is set, naming the combinator and carrying its arguments.
//
//	read: { is: self }
//	create: { and: [ { member: participants }, { count: { path: participants, amount: 2 } } ] }
type ruleNode struct {
	All     *struct{}   `yaml:"all"`
	None    *struct{}   `yaml:"none"`
	And     []ruleNode  `yaml:"and"`
	Or      []ruleNode  `yaml:"or"`
	Not     *ruleNode   `yaml:"not"`
	Request *ruleNode   `yaml:"request"`
	Is      string      `yaml:"is"`
	Member  string      `yaml:"member"`
	Count   *countNode  `yaml:"count"`
	IsEqual *equalNode  `yaml:"isEqual"`
}

type countNode struct {
	Path   string `yaml:"path"`
	Amount *int   `yaml:"amount"`
	Min    *int   `yaml:"min"`
	Max    *int   `yaml:"max"`
}

type equalNode struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// rawFieldRules is the read/write pair under a table's `fields.<name>` key.
type rawFieldRules struct {
	Read  *ruleNode `yaml:"read"`
	Write *ruleNode `yaml:"write"`
}

// rawArrayRules is the add/remove pair under a table's `arrays.<name>` key.
type rawArrayRules struct {
	Add    *ruleNode `yaml:"add"`
	Remove *ruleNode `yaml:"remove"`
}

// rawTableRules is one table's full `rules.yaml` entry.
type rawTableRules struct {
	Read   *ruleNode                `yaml:"read"`
	Write  *ruleNode                `yaml:"write"`
	Create *ruleNode                `yaml:"create"`
	Delete *ruleNode                `yaml:"delete"`
	Fields map[string]rawFieldRules `yaml:"fields"`
	Arrays map[string]rawArrayRules `yaml:"arrays"`
}

// LoadRules parses rules.yaml at path into the un-prepared rule spec the
// resolver's Ruleset compiler consumes.
func LoadRules(path string) (map[string]resolver.TableRuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err, "reading rules file %s", path)
	}
	return LoadRulesBytes(data)
}

// LoadRulesBytes parses rules.yaml content directly, primarily for tests.
func LoadRulesBytes(data []byte) (map[string]resolver.TableRuleSpec, error) {
	var raw map[string]rawTableRules
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err, "parsing rules file")
	}

	out := make(map[string]resolver.TableRuleSpec, len(raw))
	for table, rt := range raw {
		spec := resolver.TableRuleSpec{
			Fields: map[string]resolver.FieldRuleSpec{},
			Arrays: map[string]resolver.ArrayRuleSpec{},
		}
		var err error
		if spec.Read, err = buildOptional(rt.Read); err != nil {
			return nil, fmt.Errorf("%s.read: %w", table, err)
		}
		if spec.Write, err = buildOptional(rt.Write); err != nil {
			return nil, fmt.Errorf("%s.write: %w", table, err)
		}
		if spec.Create, err = buildOptional(rt.Create); err != nil {
			return nil, fmt.Errorf("%s.create: %w", table, err)
		}
		if spec.Delete, err = buildOptional(rt.Delete); err != nil {
			return nil, fmt.Errorf("%s.delete: %w", table, err)
		}
		for field, fr := range rt.Fields {
			var fspec resolver.FieldRuleSpec
			if fspec.Read, err = buildOptional(fr.Read); err != nil {
				return nil, fmt.Errorf("%s.fields.%s.read: %w", table, field, err)
			}
			if fspec.Write, err = buildOptional(fr.Write); err != nil {
				return nil, fmt.Errorf("%s.fields.%s.write: %w", table, field, err)
			}
			spec.Fields[field] = fspec
		}
		for field, ar := range rt.Arrays {
			var aspec resolver.ArrayRuleSpec
			if aspec.Add, err = buildOptional(ar.Add); err != nil {
				return nil, fmt.Errorf("%s.arrays.%s.add: %w", table, field, err)
			}
			if aspec.Remove, err = buildOptional(ar.Remove); err != nil {
				return nil, fmt.Errorf("%s.arrays.%s.remove: %w", table, field, err)
			}
			spec.Arrays[field] = aspec
		}
		out[table] = spec
	}
	return out, nil
}

func buildOptional(n *ruleNode) (rules.Rule, error) {
	if n == nil {
		return nil, nil
	}
	return build(*n)
}

func build(n ruleNode) (rules.Rule, error) {
	switch {
	case n.All != nil:
		return rules.All{}, nil
	case n.None != nil:
		return rules.None{}, nil
	case len(n.And) > 0:
		sub, err := buildAll(n.And)
		if err != nil {
			return nil, err
		}
		return rules.And{Rules: sub}, nil
	case len(n.Or) > 0:
		sub, err := buildAll(n.Or)
		if err != nil {
			return nil, err
		}
		return rules.Or{Rules: sub}, nil
	case n.Not != nil:
		inner, err := build(*n.Not)
		if err != nil {
			return nil, err
		}
		return rules.Not{Rule: inner}, nil
	case n.Request != nil:
		inner, err := build(*n.Request)
		if err != nil {
			return nil, err
		}
		return rules.RequestMode{Rule: inner}, nil
	case n.Is != "":
		return rules.Is{Path: n.Is}, nil
	case n.Member != "":
		return rules.Member{Path: n.Member}, nil
	case n.Count != nil:
		return rules.Count{
			Path: n.Count.Path,
			Spec: rules.CountSpec{Amount: n.Count.Amount, Min: n.Count.Min, Max: n.Count.Max},
		}, nil
	case n.IsEqual != nil:
		return rules.IsEqual{Path: n.IsEqual.Path, Value: n.IsEqual.Value}, nil
	default:
		return nil, fmt.Errorf("empty or unrecognized rule node")
	}
}

func buildAll(nodes []ruleNode) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(nodes))
	for i, n := range nodes {
		r, err := build(n)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
