package sqlengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/latticedb/resolver/internal/driver"
)

var operatorSQL = map[driver.Operator]string{
	driver.OpNot:  "!=",
	driver.OpLike: "LIKE",
	driver.OpGT:   ">",
	driver.OpGE:   ">=",
	driver.OpLT:   "<",
	driver.OpLE:   "<=",
}

// buildWhere renders a driver.Where into a "col op ? AND col op ?" clause
// (empty string + no args when w is empty) plus the ordered bind args.
// Column iteration order is sorted for deterministic SQL text, which keeps
// prepared-statement caching effective.
func buildWhere(w driver.Where) (string, []any, error) {
	if len(w) == 0 {
		return "", nil, nil
	}
	cols := make([]string, 0, len(w))
	for c := range w {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var clauses []string
	var args []any
	for _, col := range cols {
		clause, clauseArgs, err := buildColumnConstraint(col, w[col])
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

func buildColumnConstraint(col string, v any) (string, []any, error) {
	switch val := v.(type) {
	case nil:
		return fmt.Sprintf("%s IS NULL", quoteIdent(col)), nil, nil
	case []any:
		if len(val) == 0 {
			// Empty array constraint matches nothing: 1=0 short-circuits
			// the whole query without a separate code path upstream.
			return "1=0", nil, nil
		}
		placeholders := make([]string, len(val))
		args := make([]any, len(val))
		for i, e := range val {
			placeholders[i] = "?"
			args[i] = e
		}
		return fmt.Sprintf("%s IN (%s)", quoteIdent(col), strings.Join(placeholders, ",")), args, nil
	case map[string]any:
		return buildOperatorConstraint(col, val)
	default:
		return fmt.Sprintf("%s = ?", quoteIdent(col)), []any{val}, nil
	}
}

func buildOperatorConstraint(col string, ops map[string]any) (string, []any, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, k := range keys {
		sqlOp, ok := operatorSQL[driver.Operator(k)]
		if !ok {
			switch k {
			case "<":
				sqlOp = "<"
			case ">":
				sqlOp = ">"
			case "<=":
				sqlOp = "<="
			case ">=":
				sqlOp = ">="
			case "~":
				sqlOp = "LIKE"
			default:
				return "", nil, fmt.Errorf("sqlengine: unknown where operator %q", k)
			}
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", quoteIdent(col), sqlOp))
		args = append(args, ops[k])
	}
	return strings.Join(clauses, " AND "), args, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func buildOrder(order []driver.OrderTerm) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, len(order))
	for i, t := range order {
		dir := "ASC"
		if t.Desc {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf("%s %s", quoteIdent(t.Column), dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
