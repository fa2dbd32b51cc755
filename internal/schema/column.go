// Package schema lowers a declarative table description into a physical
// model with association tables, foreign keys, and normalized indexes.
package schema

import (
	"strconv"
	"strings"

	"github.com/latticedb/resolver/internal/apperr"
)

// ColumnType is one of the primitive column type tags a field may declare.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeChar     ColumnType = "char"
	TypeVarchar  ColumnType = "varchar"
	TypeText     ColumnType = "text"
	TypeBinary   ColumnType = "binary"
	TypeVarbin   ColumnType = "varbinary"
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeDouble   ColumnType = "double"
	TypeDecimal  ColumnType = "decimal"
	TypeBoolean  ColumnType = "boolean"
	TypeDate     ColumnType = "date"
	TypeDateTime ColumnType = "dateTime"
	TypeTime     ColumnType = "time"
	TypeYear     ColumnType = "year"
	TypeJSON     ColumnType = "json"
)

var validColumnTypes = map[ColumnType]bool{
	TypeString: true, TypeChar: true, TypeVarchar: true, TypeText: true,
	TypeBinary: true, TypeVarbin: true, TypeInteger: true, TypeFloat: true,
	TypeDouble: true, TypeDecimal: true, TypeBoolean: true, TypeDate: true,
	TypeDateTime: true, TypeTime: true, TypeYear: true, TypeJSON: true,
}

// Column is a named typed field.
type Column struct {
	Type          ColumnType
	Length        int // 0 means unspecified
	Unsigned      bool
	NotNull       bool
	Default       any // nil means "no default"
	AutoIncrement bool
}

// ParseColumnShorthand expands the "type/length" declaration shorthand into
// a full Column descriptor. A bare type with no slash is accepted as-is.
func ParseColumnShorthand(spec string) (Column, error) {
	parts := strings.SplitN(spec, "/", 2)
	t := ColumnType(strings.TrimSpace(parts[0]))
	if !validColumnTypes[t] {
		return Column{}, apperr.New(apperr.BadRequest, "unknown column type %q", parts[0])
	}
	col := Column{Type: t}
	if len(parts) == 2 {
		length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return Column{}, apperr.New(apperr.BadRequest, "invalid length in column shorthand %q", spec)
		}
		col.Length = length
	}
	return col, nil
}

// Validate enforces the notNull/default-null mutual exclusion invariant.
func (c Column) Validate() error {
	if c.NotNull && c.Default == nil {
		// A column may be notNull with no default (it simply must be
		// supplied on create); the invariant only forbids an *explicit*
		// null default combined with notNull.
		return nil
	}
	if c.NotNull {
		if _, isNull := c.Default.(nullDefault); isNull {
			return apperr.New(apperr.BadRequest, "notNull column cannot declare a null default")
		}
	}
	return nil
}

// nullDefault is a sentinel marking an explicit (as opposed to absent)
// null default value, distinguishing "no default given" from "default is
// null".
type nullDefault struct{}

// NullDefault is the sentinel value for an explicit null default.
var NullDefault = nullDefault{}

// IsNullDefault reports whether v is the NullDefault sentinel.
func IsNullDefault(v any) bool {
	_, ok := v.(nullDefault)
	return ok
}
