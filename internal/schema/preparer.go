package schema

import (
	"strconv"
	"strings"

	"github.com/latticedb/resolver/internal/apperr"
)

// NormalizeIndexShorthand disambiguates the "col/unique/8" index shorthand
// by token: a numeric token is a length, one of unique|fulltext|spatial is
// the index type, anything else must match a primitive column name on the
// table. Conflicting tokens for the same slot are rejected.
func NormalizeIndexShorthand(table *DeclaredTable, raw string) (IndexDecl, error) {
	var decl IndexDecl
	haveColumn, haveType, haveLength := false, false, false
	for _, tok := range strings.Split(raw, "/") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			if haveLength {
				return decl, apperr.New(apperr.BadRequest, "index shorthand %q gives length twice", raw)
			}
			decl.Length = n
			haveLength = true
			continue
		}
		if tok == "unique" || tok == "fulltext" || tok == "spatial" {
			if haveType {
				return decl, apperr.New(apperr.BadRequest, "index shorthand %q gives type twice", raw)
			}
			decl.Type = tok
			haveType = true
			continue
		}
		if f, ok := table.Fields[tok]; ok && f.Kind == FieldColumn {
			if haveColumn {
				return decl, apperr.New(apperr.BadRequest, "index shorthand %q gives column twice", raw)
			}
			decl.Column = tok
			haveColumn = true
			continue
		}
		return decl, apperr.New(apperr.BadRequest,
			"index shorthand %q: token %q is neither a length, a type, nor a known primitive column", raw, tok)
	}
	if !haveColumn {
		return decl, apperr.New(apperr.BadRequest, "index shorthand %q names no column", raw)
	}
	return decl, nil
}

// fieldIDColumn is the physical column name synthesized for an
// object-reference field.
func fieldIDColumn(field string) string { return field + "Id" }

// associationTableName is the physical table name synthesized for an
// array-reference field: field name concatenated with the owning table.
func associationTableName(field, ownerTable string) string { return field + ownerTable }

// Prepare lowers a declared schema into a physical model plus a
// post-processed declared schema (tableName/reservedId injected, indexes
// normalized). It runs entirely before any transaction is opened; any
// violation fails with BAD_REQUEST.
func Prepare(declared DeclaredSchema) (PhysicalModel, DeclaredSchema, error) {
	if err := declared.Validate(); err != nil {
		return nil, nil, err
	}

	// Reject fields whose name collides with another declared table's name.
	for tableName, t := range declared {
		for fieldName := range t.Fields {
			if fieldName == tableName {
				continue // self-reference is fine, e.g. User.contacts = [User]
			}
			if _, ok := declared[fieldName]; ok {
				return nil, nil, apperr.On(apperr.BadRequest, tableName, fieldName,
					"field name collides with declared table %q", fieldName)
			}
		}
	}

	// Inject tableName + reservedId into a post-processed copy.
	processed := make(DeclaredSchema, len(declared))
	for name, t := range declared {
		cp := *t
		if cp.TableName == "" {
			cp.TableName = name
		}
		cp.Name = name
		processed[name] = &cp
	}

	model := make(PhysicalModel)

	// Pass 1: primitives + object-id columns, no FK constraints yet. Using
	// names (not pointers) as the cross-reference key lets cyclic schemas
	// (User.contacts = [User]) prepare in two passes without taking
	// ownership of a reference that doesn't exist yet.
	for name, t := range processed {
		phys := &PhysicalTable{Name: t.TableName}
		phys.Columns = append(phys.Columns, PhysicalColumn{
			Name: ReservedIDColumn,
			Column: Column{
				Type: TypeInteger, Unsigned: true, NotNull: true, AutoIncrement: true,
			},
		})
		for fieldName, f := range t.Fields {
			switch f.Kind {
			case FieldColumn:
				col := f.Column
				for _, nn := range t.NotNull {
					if nn == fieldName {
						col.NotNull = true
					}
				}
				phys.Columns = append(phys.Columns, PhysicalColumn{Name: fieldName, Column: col})
			case FieldObject:
				phys.Columns = append(phys.Columns, PhysicalColumn{
					Name: fieldIDColumn(fieldName),
					Column: Column{
						Type: TypeInteger, Unsigned: true,
					},
				})
			case FieldArray:
				// handled in pass 2, once every table's reservedId column exists
			}
		}
		model[t.TableName] = phys
	}

	// Pass 2: foreign keys for object refs, and association tables for
	// array refs (each with its own two foreign keys and unique index).
	for name, t := range processed {
		phys := model[t.TableName]
		for fieldName, f := range t.Fields {
			switch f.Kind {
			case FieldObject:
				refTable := processed[f.RefTable].TableName
				phys.ForeignKeys = append(phys.ForeignKeys, ForeignKey{
					Column: fieldIDColumn(fieldName), RefTable: refTable, RefColumn: ReservedIDColumn,
					OnDeleteCasc: true, OnUpdateCasc: true,
				})
			case FieldArray:
				refTable := processed[f.RefTable].TableName
				assocName := associationTableName(fieldName, t.TableName)
				assoc := &PhysicalTable{
					Name: assocName,
					Columns: []PhysicalColumn{
						{Name: "ownerTableId", Column: Column{Type: TypeInteger, Unsigned: true, NotNull: true}},
						{Name: "fieldId", Column: Column{Type: TypeInteger, Unsigned: true, NotNull: true}},
					},
					ForeignKeys: []ForeignKey{
						{Column: "ownerTableId", RefTable: t.TableName, RefColumn: ReservedIDColumn, OnDeleteCasc: true, OnUpdateCasc: true},
						{Column: "fieldId", RefTable: refTable, RefColumn: ReservedIDColumn, OnDeleteCasc: true, OnUpdateCasc: true},
					},
					Indexes: []PhysicalIndex{
						{Columns: []string{"fieldId", "ownerTableId"}, Unique: true},
					},
					Association: &AssociationInfo{OwnerTable: t.TableName, Field: fieldName, ChildTable: refTable},
				}
				if existing, ok := model[assocName]; ok {
					return nil, nil, apperr.On(apperr.BadRequest, t.TableName, fieldName,
						"association table name %q collides with existing table %q", assocName, existing.Name)
				}
				model[assocName] = assoc
			}
		}
		// Primitive indexes declared on this table.
		for _, idx := range t.Index {
			phys.Indexes = append(phys.Indexes, PhysicalIndex{
				Columns: []string{idx.Column},
				Unique:  idx.Type == "unique",
				Type:    onlyStructuralType(idx.Type),
			})
		}
	}

	return model, processed, nil
}

func onlyStructuralType(t string) string {
	if t == "fulltext" || t == "spatial" {
		return t
	}
	return ""
}
