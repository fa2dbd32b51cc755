package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/resolver/internal/schema"
)

func feedTable() *schema.DeclaredTable {
	return &schema.DeclaredTable{
		TableName: "Feed",
		Fields: map[string]schema.Field{
			"title":        {Kind: schema.FieldColumn, Column: schema.Column{Type: schema.TypeVarchar}},
			"archived":     {Kind: schema.FieldColumn, Column: schema.Column{Type: schema.TypeBoolean}},
			"owner":        {Kind: schema.FieldObject, RefTable: "User"},
			"participants": {Kind: schema.FieldArray, RefTable: "User"},
		},
	}
}

func TestClassifySplitsFieldKinds(t *testing.T) {
	req := map[string]any{
		"title":        "hello",
		"owner":        map[string]any{"get": "*"},
		"participants": map[string]any{"add": map[string]any{"email": "x"}},
		"limit":        5,
	}
	r, err := Classify(feedTable(), req)
	require.NoError(t, err)

	assert.Equal(t, "hello", r.Primitives["title"])
	assert.Contains(t, r.Objects, "owner")
	assert.Contains(t, r.Arrays, "participants")
	assert.NotContains(t, r.Primitives, "limit")
}

func TestClassifyExpandsGetStar(t *testing.T) {
	r, err := Classify(feedTable(), map[string]any{"get": "*"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"archived", "title"}, r.Search)
}

func TestClassifyPromotesGetMentionOfObjectField(t *testing.T) {
	r, err := Classify(feedTable(), map[string]any{"get": []any{"title", "owner"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, r.Search)
	require.Contains(t, r.Objects, "owner")
	assert.Equal(t, map[string]any{"get": "*"}, r.Objects["owner"])
}

func TestClassifyRejectsGetAndConstraintCollisionOnPrimitive(t *testing.T) {
	req := map[string]any{"title": "hello", "get": []any{"title"}}
	_, err := Classify(feedTable(), req)
	assert.Error(t, err)
}

func TestClassifyRejectsGetAndConstraintCollisionOnObject(t *testing.T) {
	req := map[string]any{
		"owner": map[string]any{"email": "x"},
		"get":   []any{"owner"},
	}
	_, err := Classify(feedTable(), req)
	assert.Error(t, err)
}

func TestClassifyRejectsUndeclaredField(t *testing.T) {
	_, err := Classify(feedTable(), map[string]any{"bogus": 1})
	assert.Error(t, err)
}

func TestIsEmptyOnlyTreatsNilAsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.False(t, IsEmpty(0))
	assert.False(t, IsEmpty(""))
	assert.False(t, IsEmpty(false))
}
