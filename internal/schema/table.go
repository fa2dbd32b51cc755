package schema

import "github.com/latticedb/resolver/internal/apperr"

// FieldKind distinguishes the three things a declared field can be.
type FieldKind int

const (
	FieldColumn FieldKind = iota
	FieldObject           // reference to another declared table
	FieldArray            // single-element list referencing another declared table
)

// Field is one value in a declared table map: a column descriptor, a
// foreign-object reference, or an association reference.
type Field struct {
	Kind     FieldKind
	Column   Column // valid when Kind == FieldColumn
	RefTable string // valid when Kind == FieldObject or FieldArray
}

// IndexDecl is a normalized index declaration: {column, type?, length?}.
type IndexDecl struct {
	Column string
	Type   string // "", "unique", "fulltext", "spatial"
	Length int    // 0 means unspecified
}

// DeclaredTable is a table as written in schema.toml, field name -> Field,
// plus the reserved declaration-level keys.
type DeclaredTable struct {
	Name      string
	Fields    map[string]Field
	Index     []IndexDecl
	NotNull   []string // field names forced not-null at the table-declaration level
	TableName string   // override for the physical table name; defaults to Name
}

// DeclaredSchema is the full input to the preparer: table name -> declaration.
type DeclaredSchema map[string]*DeclaredTable

// validateFieldName rejects field names that collide with reserved words or
// with another declared table's name (self-references are fine).
func validateFieldName(name string) error {
	if ReservedInstructionKeys[name] {
		return apperr.New(apperr.BadRequest, "field name %q collides with a reserved instruction key", name)
	}
	return nil
}

// Validate walks every declared table and checks field-name and notNull/
// default invariants before any physical model is built.
func (s DeclaredSchema) Validate() error {
	for tableName, t := range s {
		for fieldName, f := range t.Fields {
			if err := validateFieldName(fieldName); err != nil {
				return apperr.On(apperr.BadRequest, tableName, fieldName, "%s", err.Error())
			}
			if f.Kind == FieldObject || f.Kind == FieldArray {
				if _, ok := s[f.RefTable]; !ok {
					return apperr.On(apperr.BadRequest, tableName, fieldName,
						"references undeclared table %q", f.RefTable)
				}
				continue
			}
			if f.Kind == FieldColumn {
				if err := f.Column.Validate(); err != nil {
					return apperr.On(apperr.BadRequest, tableName, fieldName, "%s", err.Error())
				}
			}
		}
		for _, idx := range t.Index {
			field, ok := t.Fields[idx.Column]
			if !ok {
				return apperr.On(apperr.BadRequest, tableName, idx.Column, "index targets undeclared field")
			}
			if field.Kind != FieldColumn {
				return apperr.On(apperr.BadRequest, tableName, idx.Column,
					"index may only target primitive columns, not reference fields")
			}
			if idx.Length > 0 && field.Column.Length > 0 && idx.Length > field.Column.Length {
				return apperr.On(apperr.BadRequest, tableName, idx.Column,
					"index length %d exceeds column length %d", idx.Length, field.Column.Length)
			}
		}
	}
	return nil
}

// PhysicalColumn is one column on a physical (as-created) table.
type PhysicalColumn struct {
	Name string
	Column
}

// ForeignKey is a physical foreign-key constraint; always cascading.
type ForeignKey struct {
	Column        string
	RefTable      string
	RefColumn     string
	OnDeleteCasc  bool
	OnUpdateCasc  bool
}

// PhysicalIndex is a normalized, physical-column-scoped index.
type PhysicalIndex struct {
	Columns []string
	Unique  bool
	Type    string // "", "fulltext", "spatial"
}

// AssociationInfo records what owning field+table an association table
// was synthesized for.
type AssociationInfo struct {
	OwnerTable string
	Field      string
	ChildTable string
}

// PhysicalTable is the as-created shape of one physical table.
type PhysicalTable struct {
	Name        string
	Columns     []PhysicalColumn
	ForeignKeys []ForeignKey
	Indexes     []PhysicalIndex
	Association *AssociationInfo // non-nil for synthesized association tables
}

// PhysicalModel is the full output of the preparer: physical table name ->
// physical table, for every declared table plus every synthesized
// association table.
type PhysicalModel map[string]*PhysicalTable
