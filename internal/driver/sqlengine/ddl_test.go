package sqlengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/resolver/internal/schema"
)

func TestCreateTableDDLIncludesPrimaryKeyAndIndexes(t *testing.T) {
	table := &schema.PhysicalTable{
		Name: "User",
		Columns: []schema.PhysicalColumn{
			{Name: "reservedId", Column: schema.Column{Type: schema.TypeInteger, Unsigned: true, NotNull: true, AutoIncrement: true}},
			{Name: "email", Column: schema.Column{Type: schema.TypeVarchar, Length: 255, NotNull: true}},
		},
		Indexes: []schema.PhysicalIndex{{Columns: []string{"email"}, Unique: true}},
	}
	stmts := createTableDDL(table)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS `User`")
	assert.Contains(t, stmts[0], "PRIMARY KEY (`reservedId`)")
	assert.Contains(t, stmts[0], "`email` VARCHAR(255) NOT NULL")
	assert.Contains(t, stmts[1], "CREATE UNIQUE INDEX")
}

func TestForeignKeyDDLIncludesCascade(t *testing.T) {
	table := &schema.PhysicalTable{
		Name: "Feed",
		ForeignKeys: []schema.ForeignKey{
			{Column: "ownerId", RefTable: "User", RefColumn: "reservedId", OnDeleteCasc: true, OnUpdateCasc: true},
		},
	}
	stmts := foreignKeyDDL(table)
	assert.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "FOREIGN KEY (`ownerId`) REFERENCES `User` (`reservedId`)")
	assert.Contains(t, stmts[0], "ON DELETE CASCADE")
	assert.Contains(t, stmts[0], "ON UPDATE CASCADE")
}

func TestColumnDDLRendersNullDefault(t *testing.T) {
	col := schema.PhysicalColumn{Name: "nickname", Column: schema.Column{Type: schema.TypeVarchar, Length: 64, Default: schema.NullDefault}}
	assert.Contains(t, columnDDL(col), "DEFAULT NULL")
}
