package sqlengine

import (
	"fmt"
	"strings"

	"github.com/latticedb/resolver/internal/schema"
)

var columnTypeSQL = map[schema.ColumnType]string{
	schema.TypeString:   "VARCHAR(255)",
	schema.TypeChar:     "CHAR",
	schema.TypeVarchar:  "VARCHAR",
	schema.TypeText:     "TEXT",
	schema.TypeBinary:   "BINARY",
	schema.TypeVarbin:   "VARBINARY",
	schema.TypeInteger:  "INT",
	schema.TypeFloat:    "FLOAT",
	schema.TypeDouble:   "DOUBLE",
	schema.TypeDecimal:  "DECIMAL",
	schema.TypeBoolean:  "BOOLEAN",
	schema.TypeDate:     "DATE",
	schema.TypeDateTime: "DATETIME",
	schema.TypeTime:     "TIME",
	schema.TypeYear:     "YEAR",
	schema.TypeJSON:     "JSON",
}

// columnDDL renders one physical column's type + modifiers.
func columnDDL(c schema.PhysicalColumn) string {
	base := columnTypeSQL[c.Type]
	if c.Length > 0 && (c.Type == schema.TypeVarchar || c.Type == schema.TypeChar ||
		c.Type == schema.TypeBinary || c.Type == schema.TypeVarbin || c.Type == schema.TypeDecimal) {
		base = fmt.Sprintf("%s(%d)", base, c.Length)
	}
	var mods []string
	if c.Unsigned {
		mods = append(mods, "UNSIGNED")
	}
	if c.NotNull {
		mods = append(mods, "NOT NULL")
	}
	if c.AutoIncrement {
		mods = append(mods, "AUTO_INCREMENT")
	}
	if c.Default != nil {
		if schema.IsNullDefault(c.Default) {
			mods = append(mods, "DEFAULT NULL")
		} else {
			mods = append(mods, fmt.Sprintf("DEFAULT %v", c.Default))
		}
	}
	if len(mods) == 0 {
		return fmt.Sprintf("%s %s", quoteIdent(c.Name), base)
	}
	return fmt.Sprintf("%s %s %s", quoteIdent(c.Name), base, strings.Join(mods, " "))
}

// indexDDL renders one physical index as a standalone CREATE INDEX / CREATE
// UNIQUE INDEX statement, run after the table itself.
func indexDDL(table string, idx schema.PhysicalIndex) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quoteIdent(c)
	}
	name := fmt.Sprintf("idx_%s_%s", table, strings.Join(idx.Columns, "_"))
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, quoteIdent(name), quoteIdent(table), strings.Join(cols, ", "))
}

// createTableDDL renders the CREATE TABLE IF NOT EXISTS statement plus its
// trailing CREATE INDEX statements. Foreign keys are added in a later pass
// via foreignKeyDDL, once every table exists (mirrors the schema preparer's
// two-pass strategy for cyclic schemas).
func createTableDDL(t *schema.PhysicalTable) []string {
	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		cols = append(cols, columnDDL(c))
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(schema.ReservedIDColumn)))

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quoteIdent(t.Name), strings.Join(cols, ",\n  "))}
	for _, idx := range t.Indexes {
		stmts = append(stmts, indexDDL(t.Name, idx))
	}
	return stmts
}

// foreignKeyDDL renders the ALTER TABLE ADD CONSTRAINT statements for one
// physical table's foreign keys.
func foreignKeyDDL(t *schema.PhysicalTable) []string {
	stmts := make([]string, 0, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		name := fmt.Sprintf("fk_%s_%s_%d", t.Name, fk.Column, i)
		stmt := fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(t.Name), quoteIdent(name), quoteIdent(fk.Column), quoteIdent(fk.RefTable), quoteIdent(fk.RefColumn),
		)
		if fk.OnDeleteCasc {
			stmt += " ON DELETE CASCADE"
		}
		if fk.OnUpdateCasc {
			stmt += " ON UPDATE CASCADE"
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}
