package resolver

import (
	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/schema"
)

// validateRequest checks the shape of a non-admin sub-request before it is
// classified: constraint shapes, the create/delete exclusivity rule, set's
// primitive type-checking, and create's required-field coverage.
func validateRequest(table *schema.DeclaredTable, req map[string]any) error {
	isCreate := truthy(req["create"])
	isDelete := truthy(req["delete"])
	if isCreate && isDelete {
		return apperr.On(apperr.BadRequest, table.TableName, "", "a sub-request may not both create and delete")
	}

	if setVal, ok := req["set"]; ok {
		setMap, ok := setVal.(map[string]any)
		if !ok {
			return apperr.On(apperr.BadRequest, table.TableName, "set", "set must be an object")
		}
		for field, v := range setMap {
			f, ok := table.Fields[field]
			if !ok {
				return apperr.On(apperr.BadRequest, table.TableName, field, "set names an undeclared field")
			}
			if f.Kind == schema.FieldColumn {
				if err := checkScalarType(f.Column, v); err != nil {
					return apperr.On(apperr.BadRequest, table.TableName, field, "%s", err.Error())
				}
			}
		}
	}

	for field, v := range req {
		f, ok := table.Fields[field]
		if !ok {
			continue
		}
		switch f.Kind {
		case schema.FieldColumn:
			if err := checkConstraintShape(f.Column, v); err != nil {
				return apperr.On(apperr.BadRequest, table.TableName, field, "%s", err.Error())
			}
		case schema.FieldObject:
			if v != nil {
				if _, ok := v.(map[string]any); !ok {
					return apperr.On(apperr.BadRequest, table.TableName, field, "object reference constraint must be an object or null")
				}
			}
		case schema.FieldArray:
			if v == nil {
				continue
			}
			sub, ok := v.(map[string]any)
			if !ok {
				return apperr.On(apperr.BadRequest, table.TableName, field, "array reference constraint must be an object or null")
			}
			if (isCreate || isDelete) && (sub["add"] != nil || sub["remove"] != nil) {
				return apperr.On(apperr.BadRequest, table.TableName, field, "add/remove are not allowed alongside create or delete")
			}
		}
	}

	if isCreate {
		for field, f := range table.Fields {
			if f.Kind != schema.FieldColumn {
				continue
			}
			if f.Column.NotNull && f.Column.Default == nil {
				if _, present := req[field]; !present {
					return apperr.On(apperr.Required, table.TableName, field, "field is required on create")
				}
			}
		}
	}

	if limit, ok := req["limit"]; ok {
		if !isInt(limit) {
			return apperr.On(apperr.BadRequest, table.TableName, "limit", "limit must be an integer")
		}
	}
	if offset, ok := req["offset"]; ok {
		if !isInt(offset) {
			return apperr.On(apperr.BadRequest, table.TableName, "offset", "offset must be an integer")
		}
	}
	if order, ok := req["order"]; ok {
		if err := validateOrder(table, order); err != nil {
			return err
		}
	}
	return nil
}

func validateOrder(table *schema.DeclaredTable, order any) error {
	terms, ok := order.([]any)
	if !ok {
		if s, ok := order.(string); ok {
			terms = []any{s}
		} else {
			return apperr.On(apperr.BadRequest, table.TableName, "order", "order must be a column name or a list of column names")
		}
	}
	for _, t := range terms {
		s, ok := t.(string)
		if !ok {
			return apperr.On(apperr.BadRequest, table.TableName, "order", "order entries must be strings")
		}
		name := s
		if len(name) > 0 && name[0] == '-' {
			name = name[1:]
		}
		f, ok := table.Fields[name]
		if !ok || f.Kind != schema.FieldColumn {
			return apperr.On(apperr.BadRequest, table.TableName, "order", "order names an undeclared or non-primitive column %q", name)
		}
	}
	return nil
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int32, int64, float64:
		return true
	default:
		return false
	}
}

// checkScalarType rejects a set/create value whose Go type is incompatible
// with the column's declared type. nil is always accepted (set-to-null);
// presence/notNull enforcement happens elsewhere.
func checkScalarType(c schema.Column, v any) error {
	if v == nil || schema.IsNullDefault(v) {
		return nil
	}
	switch c.Type {
	case schema.TypeInteger, schema.TypeYear:
		if !isInt(v) {
			return apperr.New(apperr.BadRequest, "expected an integer")
		}
	case schema.TypeFloat, schema.TypeDouble, schema.TypeDecimal:
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			return apperr.New(apperr.BadRequest, "expected a number")
		}
	case schema.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return apperr.New(apperr.BadRequest, "expected a boolean")
		}
	case schema.TypeString, schema.TypeChar, schema.TypeVarchar, schema.TypeText,
		schema.TypeDate, schema.TypeDateTime, schema.TypeTime:
		if _, ok := v.(string); !ok {
			return apperr.New(apperr.BadRequest, "expected a string")
		}
	}
	return nil
}

// checkConstraintShape validates a primitive field's top-level constraint:
// a scalar (equality), a list (OR), or an operator-keyed object (AND of
// comparisons). Each leaf scalar is still type-checked against the column.
func checkConstraintShape(c schema.Column, v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		for _, e := range val {
			if err := checkScalarType(c, e); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for op, e := range val {
			switch op {
			case "not", "like", "gt", "ge", "lt", "le":
			default:
				return apperr.New(apperr.BadRequest, "unknown constraint operator %q", op)
			}
			if err := checkScalarType(c, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return checkScalarType(c, val)
	}
}
