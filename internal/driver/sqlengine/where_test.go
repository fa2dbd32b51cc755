package sqlengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/resolver/internal/driver"
)

func TestBuildWhereEquality(t *testing.T) {
	clause, args, err := buildWhere(driver.Where{"email": "u1@x"})
	require.NoError(t, err)
	assert.Equal(t, "`email` = ?", clause)
	assert.Equal(t, []any{"u1@x"}, args)
}

func TestBuildWhereOrSemanticsOnArray(t *testing.T) {
	clause, args, err := buildWhere(driver.Where{"reservedId": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "`reservedId` IN (?,?,?)", clause)
	assert.Equal(t, []any{1, 2, 3}, args)
}

func TestBuildWhereEmptyArrayShortCircuits(t *testing.T) {
	clause, args, err := buildWhere(driver.Where{"reservedId": []any{}})
	require.NoError(t, err)
	assert.Equal(t, "1=0", clause)
	assert.Empty(t, args)
}

func TestBuildWhereOperatorObjectANDs(t *testing.T) {
	clause, args, err := buildWhere(driver.Where{"age": map[string]any{"ge": 18, "lt": 65}})
	require.NoError(t, err)
	assert.Contains(t, clause, "`age` >= ?")
	assert.Contains(t, clause, "`age` < ?")
	assert.Contains(t, clause, " AND ")
	assert.ElementsMatch(t, []any{18, 65}, args)
}

func TestBuildWhereUnknownOperatorErrors(t *testing.T) {
	_, _, err := buildWhere(driver.Where{"age": map[string]any{"bogus": 1}})
	assert.Error(t, err)
}

func TestBuildWhereMultipleColumnsSortedAndANDed(t *testing.T) {
	clause, _, err := buildWhere(driver.Where{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, "`a` = ? AND `b` = ?", clause)
}

func TestBuildOrderDescending(t *testing.T) {
	clause := buildOrder([]driver.OrderTerm{{Column: "created", Desc: true}, {Column: "pseudo"}})
	assert.Equal(t, " ORDER BY `created` DESC, `pseudo` ASC", clause)
}
