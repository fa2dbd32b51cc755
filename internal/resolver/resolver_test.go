package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/enginetest"
	"github.com/latticedb/resolver/internal/plugin"
	"github.com/latticedb/resolver/internal/rules"
	"github.com/latticedb/resolver/internal/schema"
)

func allowAllSpec() map[string]TableRuleSpec {
	return map[string]TableRuleSpec{
		"users":    {Read: rules.All{}, Write: rules.All{}, Create: rules.All{}, Delete: rules.All{}},
		"feeds":    {Read: rules.All{}, Write: rules.All{}, Create: rules.All{}, Delete: rules.All{}},
		"messages": {Read: rules.All{}, Write: rules.All{}, Create: rules.All{}, Delete: rules.All{}},
	}
}

// buildTestServer declares a small users/feeds/messages schema, prepares
// its physical model against an in-memory driver, and compiles ruleSpec
// against it.
func buildTestServer(t *testing.T, ruleSpec map[string]TableRuleSpec) *Server {
	t.Helper()

	declared := schema.DeclaredSchema{
		"users": {
			Fields: map[string]schema.Field{
				"name": {Kind: schema.FieldColumn, Column: schema.Column{Type: schema.TypeVarchar, Length: 120, NotNull: true}},
			},
		},
		"feeds": {
			Fields: map[string]schema.Field{
				"title":        {Kind: schema.FieldColumn, Column: schema.Column{Type: schema.TypeVarchar, Length: 200, NotNull: true}},
				"owner":        {Kind: schema.FieldObject, RefTable: "users"},
				"participants": {Kind: schema.FieldArray, RefTable: "users"},
				"messages":     {Kind: schema.FieldArray, RefTable: "messages"},
			},
		},
		"messages": {
			Fields: map[string]schema.Field{
				"body":   {Kind: schema.FieldColumn, Column: schema.Column{Type: schema.TypeText, NotNull: true}},
				"author": {Kind: schema.FieldObject, RefTable: "users"},
			},
		},
	}

	model, processed, err := schema.Prepare(declared)
	require.NoError(t, err)

	rs, err := CompileRules(processed, ruleSpec)
	require.NoError(t, err)

	d := enginetest.New()
	ctx := context.Background()
	for _, phys := range model {
		require.NoError(t, d.CreateTable(ctx, phys.Name, nil, nil))
	}

	return New(model, processed, rs, plugin.NewDispatcher(), d, "admin-secret")
}

func createUser(t *testing.T, srv *Server, ctx context.Context, name string) any {
	t.Helper()
	out, err := srv.ResolveAdmin(ctx, map[string]any{
		"users": map[string]any{"create": true, "name": name, "get": "*"},
	})
	require.NoError(t, err)
	rows, ok := out["users"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	return rows[0]["reservedId"]
}

func TestCreateAndGetUser(t *testing.T) {
	srv := buildTestServer(t, allowAllSpec())
	ctx := context.Background()

	out, err := srv.ResolveAdmin(ctx, map[string]any{
		"users": map[string]any{"create": true, "name": "alice", "get": "*"},
	})
	require.NoError(t, err)

	rows := out["users"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, true, rows[0]["created"])
}

func TestObjectReferenceRequiredNotFoundPropagates(t *testing.T) {
	srv := buildTestServer(t, allowAllSpec())
	ctx := context.Background()

	_, err := srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{
			"create": true, "title": "no-such-owner",
			"owner": map[string]any{"reservedId": 9999, "required": true},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestArrayChildrenResolveByReservedID(t *testing.T) {
	srv := buildTestServer(t, allowAllSpec())
	ctx := context.Background()

	alice := createUser(t, srv, ctx, "alice")
	bob := createUser(t, srv, ctx, "bob")

	out, err := srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{
			"create": true, "title": "two-person-chat", "get": "*",
			"owner":        map[string]any{"reservedId": alice},
			"participants": map[string]any{"reservedId": []any{alice, bob}},
		},
	})
	require.NoError(t, err)
	rows := out["feeds"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "two-person-chat", rows[0]["title"])

	fetched, err := srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{"reservedId": rows[0]["reservedId"], "get": "*", "participants": map[string]any{"get": "*"}},
	})
	require.NoError(t, err)
	feedRows := fetched["feeds"].([]map[string]any)
	require.Len(t, feedRows, 1)
	participants, ok := feedRows[0]["participants"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, participants, 2)
}

func TestFeedParticipantCountRuleRejectsWrongSize(t *testing.T) {
	spec := allowAllSpec()
	spec["feeds"] = TableRuleSpec{
		Read:   rules.Member{Path: "participants"},
		Write:  rules.All{},
		Create: rules.RequestMode{Rule: rules.Count{Path: "participants", Spec: rules.CountSpec{Amount: intPtr2(2)}}},
		Delete: rules.All{},
	}
	srv := buildTestServer(t, spec)
	ctx := context.Background()

	alice := createUser(t, srv, ctx, "alice")

	_, err := srv.Resolve(ctx, alice, map[string]any{
		"feeds": map[string]any{
			"create": true, "title": "solo-chat",
			"owner":        map[string]any{"reservedId": alice},
			"participants": map[string]any{"reservedId": []any{alice}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestFeedParticipantCountRuleAcceptsCorrectSize(t *testing.T) {
	spec := allowAllSpec()
	spec["feeds"] = TableRuleSpec{
		Read:   rules.Member{Path: "participants"},
		Write:  rules.All{},
		Create: rules.RequestMode{Rule: rules.Count{Path: "participants", Spec: rules.CountSpec{Amount: intPtr2(2)}}},
		Delete: rules.All{},
	}
	srv := buildTestServer(t, spec)
	ctx := context.Background()

	alice := createUser(t, srv, ctx, "alice")
	bob := createUser(t, srv, ctx, "bob")

	out, err := srv.Resolve(ctx, alice, map[string]any{
		"feeds": map[string]any{
			"create": true, "title": "two-person-chat",
			"owner":        map[string]any{"reservedId": alice},
			"participants": map[string]any{"reservedId": []any{alice, bob}},
		},
	})
	require.NoError(t, err)
	rows := out["feeds"].([]map[string]any)
	require.Len(t, rows, 1)
}

func TestMessageReadRestrictedToFeedParticipants(t *testing.T) {
	spec := allowAllSpec()
	spec["messages"] = TableRuleSpec{
		Read:   rules.Member{Path: "parent.participants"},
		Write:  rules.All{},
		Create: rules.All{},
		Delete: rules.All{},
	}
	srv := buildTestServer(t, spec)
	ctx := context.Background()

	alice := createUser(t, srv, ctx, "alice")
	bob := createUser(t, srv, ctx, "bob")
	eve := createUser(t, srv, ctx, "eve")

	feedOut, err := srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{
			"create": true, "title": "private-chat", "get": "*",
			"owner":        map[string]any{"reservedId": alice},
			"participants": map[string]any{"reservedId": []any{alice, bob}},
			"messages":     map[string]any{"create": true, "body": "hello", "author": map[string]any{"reservedId": alice}},
		},
	})
	require.NoError(t, err)
	feedRows := feedOut["feeds"].([]map[string]any)
	require.Len(t, feedRows, 1)
	feedID := feedRows[0]["reservedId"]

	asBob, err := srv.Resolve(ctx, bob, map[string]any{
		"feeds": map[string]any{"reservedId": feedID, "get": "*", "messages": map[string]any{"get": "*"}},
	})
	require.NoError(t, err)
	bobFeeds := asBob["feeds"].([]map[string]any)
	require.Len(t, bobFeeds, 1)
	bobMessages, _ := bobFeeds[0]["messages"].([]map[string]any)
	assert.Len(t, bobMessages, 1)

	asEve, err := srv.Resolve(ctx, eve, map[string]any{
		"feeds": map[string]any{"reservedId": feedID, "get": "*", "messages": map[string]any{"get": "*"}},
	})
	require.NoError(t, err)
	eveFeeds := asEve["feeds"].([]map[string]any)
	require.Len(t, eveFeeds, 1)
	eveMessages, _ := eveFeeds[0]["messages"].([]map[string]any)
	assert.Len(t, eveMessages, 0)
}

func TestDeleteRemovesRowAndAssociations(t *testing.T) {
	srv := buildTestServer(t, allowAllSpec())
	ctx := context.Background()

	alice := createUser(t, srv, ctx, "alice")
	bob := createUser(t, srv, ctx, "bob")

	feedOut, err := srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{
			"create": true, "title": "to-delete", "get": "*",
			"owner":        map[string]any{"reservedId": alice},
			"participants": map[string]any{"reservedId": []any{alice, bob}},
		},
	})
	require.NoError(t, err)
	feedID := feedOut["feeds"].([]map[string]any)[0]["reservedId"]

	_, err = srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{"reservedId": feedID, "delete": true},
	})
	require.NoError(t, err)

	out, err := srv.ResolveAdmin(ctx, map[string]any{
		"feeds": map[string]any{"reservedId": feedID, "get": "*"},
	})
	require.NoError(t, err)
	assert.Len(t, out["feeds"].([]map[string]any), 0)
}

func intPtr2(n int) *int { return &n }
