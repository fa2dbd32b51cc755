package rules

import (
	"fmt"
	"strings"
	"time"
)

// resolvePath walks a dotted path against subj, starting tokens being
// either "self" (subj itself), "parent"/".." (one level up), or a field
// name. Each subsequent token is a field on whatever Subject the previous
// token produced. The final token's value (Subject, []Subject, or scalar)
// is returned as-is.
func resolvePath(subj Subject, path string) (any, error) {
	if subj == nil {
		return nil, fmt.Errorf("path %q: no subject in scope", path)
	}
	tokens := strings.Split(path, ".")
	var cur any = subj
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		switch tok {
		case "self", "":
			continue
		case "parent", "..":
			s, ok := cur.(Subject)
			if !ok {
				return nil, fmt.Errorf("path %q: %q is not addressable on a non-object value", path, tok)
			}
			up, ok := s.Parent()
			if !ok {
				return nil, fmt.Errorf("path %q: no parent in scope at token %d", path, i)
			}
			cur = up
		default:
			s, ok := cur.(Subject)
			if !ok {
				return nil, fmt.Errorf("path %q: cannot access field %q on a non-object value", path, tok)
			}
			v, ok := s.Field(tok)
			if !ok {
				return nil, fmt.Errorf("path %q: field %q not present", path, tok)
			}
			cur = v
		}
	}
	return cur, nil
}

// resolvePathList resolves path and requires the result to be a list of
// Subjects (an array-reference field).
func resolvePathList(subj Subject, path string) ([]Subject, error) {
	v, err := resolvePath(subj, path)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]Subject)
	if !ok {
		return nil, fmt.Errorf("path %q: target is not an array-reference field", path)
	}
	return list, nil
}

// valuesEqual compares two field values for the isEqual/is/member
// combinators. time.Time values compare by instant; everything else by
// Go equality after matching numeric types loosely (ints vs floats as
// decoded from JSON/TOML both show up as float64 or int64 depending on
// source).
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
