package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userFeedSchema() DeclaredSchema {
	return DeclaredSchema{
		"User": &DeclaredTable{
			Fields: map[string]Field{
				"pseudo":   {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 64}},
				"email":    {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 255}},
				"password": {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 255}},
				"contacts": {Kind: FieldArray, RefTable: "User"},
				"invited":  {Kind: FieldArray, RefTable: "User"},
			},
			Index: []IndexDecl{{Column: "email", Type: "unique"}},
		},
		"Feed": &DeclaredTable{
			Fields: map[string]Field{
				"title":        {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 255}},
				"owner":        {Kind: FieldObject, RefTable: "User"},
				"participants": {Kind: FieldArray, RefTable: "User"},
			},
		},
	}
}

func TestPrepareSelfReferencingSchema(t *testing.T) {
	model, processed, err := Prepare(userFeedSchema())
	require.NoError(t, err)

	userTable := model["User"]
	require.NotNil(t, userTable)
	assert.Equal(t, ReservedIDColumn, userTable.Columns[0].Name)

	// contacts and invited are both self-referencing array fields; each
	// gets its own association table.
	assert.Contains(t, model, "contactsUser")
	assert.Contains(t, model, "invitedUser")
	assoc := model["contactsUser"]
	assert.Len(t, assoc.Columns, 2)
	assert.Equal(t, "ownerTableId", assoc.Columns[0].Name)
	assert.Equal(t, "fieldId", assoc.Columns[1].Name)
	require.Len(t, assoc.Indexes, 1)
	assert.True(t, assoc.Indexes[0].Unique)
	assert.Equal(t, []string{"fieldId", "ownerTableId"}, assoc.Indexes[0].Columns)

	assert.Equal(t, "User", processed["User"].TableName)
}

func TestPrepareObjectReferenceGetsForeignKey(t *testing.T) {
	model, _, err := Prepare(userFeedSchema())
	require.NoError(t, err)

	feed := model["Feed"]
	var fk *ForeignKey
	for i := range feed.ForeignKeys {
		if feed.ForeignKeys[i].Column == "ownerId" {
			fk = &feed.ForeignKeys[i]
		}
	}
	require.NotNil(t, fk)
	assert.Equal(t, "User", fk.RefTable)
	assert.Equal(t, ReservedIDColumn, fk.RefColumn)
	assert.True(t, fk.OnDeleteCasc)
	assert.True(t, fk.OnUpdateCasc)
}

func TestPrepareRejectsIndexOnReferenceField(t *testing.T) {
	s := userFeedSchema()
	s["Feed"].Index = []IndexDecl{{Column: "owner"}}
	_, _, err := Prepare(s)
	require.Error(t, err)
}

func TestPrepareRejectsReservedFieldName(t *testing.T) {
	s := userFeedSchema()
	s["User"].Fields["delete"] = Field{Kind: FieldColumn, Column: Column{Type: TypeBoolean}}
	_, _, err := Prepare(s)
	require.Error(t, err)
}

func TestPrepareRejectsFieldNameCollidingWithTable(t *testing.T) {
	s := userFeedSchema()
	s["Feed"].Fields["User"] = Field{Kind: FieldColumn, Column: Column{Type: TypeBoolean}}
	_, _, err := Prepare(s)
	require.Error(t, err)
}

func TestPrepareRejectsNotNullWithNullDefault(t *testing.T) {
	s := DeclaredSchema{
		"T": &DeclaredTable{
			Fields: map[string]Field{
				"x": {Kind: FieldColumn, Column: Column{Type: TypeInteger, NotNull: true, Default: NullDefault}},
			},
		},
	}
	_, _, err := Prepare(s)
	require.Error(t, err)
}

func TestNormalizeIndexShorthandDisambiguatesTokens(t *testing.T) {
	table := &DeclaredTable{
		Fields: map[string]Field{
			"email": {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 255}},
		},
	}
	decl, err := NormalizeIndexShorthand(table, "email/unique/8")
	require.NoError(t, err)
	assert.Equal(t, "email", decl.Column)
	assert.Equal(t, "unique", decl.Type)
	assert.Equal(t, 8, decl.Length)
}

func TestNormalizeIndexShorthandConflictingTokens(t *testing.T) {
	table := &DeclaredTable{
		Fields: map[string]Field{
			"email": {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 255}},
			"name":  {Kind: FieldColumn, Column: Column{Type: TypeVarchar, Length: 255}},
		},
	}
	_, err := NormalizeIndexShorthand(table, "email/name")
	require.Error(t, err)
}

func TestParseColumnShorthand(t *testing.T) {
	col, err := ParseColumnShorthand("varchar/255")
	require.NoError(t, err)
	assert.Equal(t, TypeVarchar, col.Type)
	assert.Equal(t, 255, col.Length)

	_, err = ParseColumnShorthand("notatype")
	require.Error(t, err)
}
