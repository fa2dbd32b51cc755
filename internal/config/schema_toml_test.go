package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/resolver/internal/schema"
)

const sampleSchema = `
[User]
notNull = ["email"]
index = ["email/unique/255"]

  [User.fields]
  pseudo = "string/64"
  email = "string/255"
  contacts = { array = "User" }

[Feed]
  [Feed.fields]
  title = "string/200"
  owner = { object = "User" }
  participants = { array = "User" }
`

func TestLoadSchemaStringParsesColumnsObjectsAndArrays(t *testing.T) {
	declared, err := LoadSchemaString(sampleSchema)
	require.NoError(t, err)
	require.Contains(t, declared, "User")
	require.Contains(t, declared, "Feed")

	user := declared["User"]
	assert.Equal(t, []string{"email"}, user.NotNull)
	require.Len(t, user.Index, 1)
	assert.Equal(t, "email", user.Index[0].Column)
	assert.Equal(t, "unique", user.Index[0].Type)
	assert.Equal(t, 255, user.Index[0].Length)

	pseudo := user.Fields["pseudo"]
	assert.Equal(t, schema.FieldColumn, pseudo.Kind)
	assert.Equal(t, schema.TypeString, pseudo.Column.Type)
	assert.Equal(t, 64, pseudo.Column.Length)

	contacts := user.Fields["contacts"]
	assert.Equal(t, schema.FieldArray, contacts.Kind)
	assert.Equal(t, "User", contacts.RefTable)

	feed := declared["Feed"]
	owner := feed.Fields["owner"]
	assert.Equal(t, schema.FieldObject, owner.Kind)
	assert.Equal(t, "User", owner.RefTable)
}

func TestLoadSchemaStringFeedsIntoPreparer(t *testing.T) {
	declared, err := LoadSchemaString(sampleSchema)
	require.NoError(t, err)

	model, processed, err := schema.Prepare(declared)
	require.NoError(t, err)
	assert.Contains(t, processed, "User")
	assert.Contains(t, model, "participantsFeed")
}

func TestLoadSchemaStringRejectsUnknownFieldShape(t *testing.T) {
	_, err := LoadSchemaString(`
[User]
  [User.fields]
  bogus = { neither = "x" }
`)
	assert.Error(t, err)
}

func TestLoadSchemaStringRejectsBadColumnType(t *testing.T) {
	_, err := LoadSchemaString(`
[User]
  [User.fields]
  name = "notatype/8"
`)
	assert.Error(t, err)
}
