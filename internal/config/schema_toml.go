// Package config loads the engine's startup configuration — the declared
// schema (schema.toml), the rule tree (rules.yaml), and flat runtime
// settings (settings.yaml, env, flags) — and watches the config directory
// for edits so rules can be hot-reloaded without a restart.
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/schema"
)

// rawTable is one [TableName] block in schema.toml.
type rawTable struct {
	TableName string         `toml:"tableName"`
	NotNull   []string       `toml:"notNull"`
	Index     []string       `toml:"index"`
	Fields    map[string]any `toml:"fields"`
}

// LoadSchema parses schema.toml at path into a DeclaredSchema ready for
// schema.Prepare. A field value is either a column shorthand string
// ("string/64"), {object = "TableName"} for a foreign-object reference, or
// {array = "TableName"} for an association reference.
func LoadSchema(path string) (schema.DeclaredSchema, error) {
	var raw map[string]rawTable
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err, "parsing schema file %s", path)
	}
	return convertSchema(raw)
}

// LoadSchemaString parses TOML schema text directly, primarily for tests.
func LoadSchemaString(src string) (schema.DeclaredSchema, error) {
	var raw map[string]rawTable
	if _, err := toml.Decode(src, &raw); err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err, "parsing inline schema")
	}
	return convertSchema(raw)
}

func convertSchema(raw map[string]rawTable) (schema.DeclaredSchema, error) {
	declared := make(schema.DeclaredSchema, len(raw))
	for name, rt := range raw {
		fields := make(map[string]schema.Field, len(rt.Fields))
		for fieldName, v := range rt.Fields {
			f, err := convertField(name, fieldName, v)
			if err != nil {
				return nil, err
			}
			fields[fieldName] = f
		}

		declared[name] = &schema.DeclaredTable{
			Name:      name,
			TableName: rt.TableName,
			NotNull:   rt.NotNull,
			Fields:    fields,
		}

		// Index shorthand is disambiguated against the table's own primitive
		// columns, so it must run after Fields is populated.
		normalized := make([]schema.IndexDecl, 0, len(rt.Index))
		for _, shorthand := range rt.Index {
			decl, err := schema.NormalizeIndexShorthand(declared[name], shorthand)
			if err != nil {
				return nil, err
			}
			normalized = append(normalized, decl)
		}
		declared[name].Index = normalized
	}
	return declared, nil
}

func convertField(table, field string, v any) (schema.Field, error) {
	switch val := v.(type) {
	case string:
		col, err := schema.ParseColumnShorthand(val)
		if err != nil {
			return schema.Field{}, apperr.On(apperr.BadRequest, table, field, "%v", err)
		}
		return schema.Field{Kind: schema.FieldColumn, Column: col}, nil
	case map[string]any:
		if ref, ok := val["object"].(string); ok {
			return schema.Field{Kind: schema.FieldObject, RefTable: ref}, nil
		}
		if ref, ok := val["array"].(string); ok {
			return schema.Field{Kind: schema.FieldArray, RefTable: ref}, nil
		}
		return schema.Field{}, apperr.On(apperr.BadRequest, table, field,
			"field table must set either 'object' or 'array'")
	default:
		return schema.Field{}, apperr.On(apperr.BadRequest, table, field,
			"unsupported field declaration type %T", v)
	}
}
