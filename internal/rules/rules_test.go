package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func user(id any, fields map[string]any, parent Subject) *MapSubject {
	data := map[string]any{"reservedId": id}
	for k, v := range fields {
		data[k] = v
	}
	sub := &MapSubject{Data: data}
	if parent != nil {
		sub.Up, sub.HasUp = parent, true
	}
	return sub
}

func TestAllAlwaysSucceeds(t *testing.T) {
	p, err := All{}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.NoError(t, p(&EvalContext{}))
}

func TestNoneDeniesUnlessPrivateKeyMatches(t *testing.T) {
	p, err := None{}.Prepare(PrepareContext{})
	require.NoError(t, err)

	assert.Error(t, p(&EvalContext{AuthID: 1, PrivateKey: "secret-key"}))
	assert.NoError(t, p(&EvalContext{AuthID: "secret-key", PrivateKey: "secret-key"}))
}

func TestIsMatchesReservedID(t *testing.T) {
	obj := user(42, nil, nil)
	p, err := Is{Path: "self"}.Prepare(PrepareContext{})
	require.NoError(t, err)

	assert.NoError(t, p(&EvalContext{Object: obj, AuthID: 42}))
	assert.Error(t, p(&EvalContext{Object: obj, AuthID: 7}))
}

func TestIsWalksParentPath(t *testing.T) {
	owner := user(1, nil, nil)
	feed := user(99, nil, owner)
	p, err := Is{Path: "parent"}.Prepare(PrepareContext{})
	require.NoError(t, err)

	assert.NoError(t, p(&EvalContext{Object: feed, AuthID: 1}))
}

func TestMemberSucceedsWhenAuthIDInList(t *testing.T) {
	alice := user(1, nil, nil)
	bob := user(2, nil, nil)
	feed := user(99, map[string]any{"participants": []Subject{alice, bob}}, nil)

	p, err := Member{Path: "participants"}.Prepare(PrepareContext{})
	require.NoError(t, err)

	assert.NoError(t, p(&EvalContext{Object: feed, AuthID: 2}))
	assert.Error(t, p(&EvalContext{Object: feed, AuthID: 3}))
}

func TestCountEnforcesAmountExclusiveOfRange(t *testing.T) {
	_, err := Count{Path: "participants", Spec: CountSpec{Amount: intPtr(2), Min: intPtr(1)}}.Prepare(PrepareContext{})
	assert.Error(t, err)
}

func TestCountRange(t *testing.T) {
	feed := user(99, map[string]any{
		"participants": []Subject{user(1, nil, nil), user(2, nil, nil)},
	}, nil)

	p, err := Count{Path: "participants", Spec: CountSpec{Min: intPtr(2), Max: intPtr(2)}}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.NoError(t, p(&EvalContext{Object: feed}))

	p, err = Count{Path: "participants", Spec: CountSpec{Amount: intPtr(3)}}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.Error(t, p(&EvalContext{Object: feed}))
}

func TestIsEqualComparesScalarFields(t *testing.T) {
	msg := user(5, map[string]any{"body": "hello"}, nil)
	p, err := IsEqual{Path: "body", Value: "hello"}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.NoError(t, p(&EvalContext{Object: msg}))

	p, err = IsEqual{Path: "body", Value: "goodbye"}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.Error(t, p(&EvalContext{Object: msg}))
}

func TestIsEqualRejectsObjectTarget(t *testing.T) {
	owner := user(1, nil, nil)
	feed := user(99, map[string]any{"owner": owner}, nil)
	p, err := IsEqual{Path: "owner", Value: "x"}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.Error(t, p(&EvalContext{Object: feed}))
}

func TestAndShortCircuitsOnFirstFailure(t *testing.T) {
	obj := user(1, nil, nil)
	p, err := And{Rules: []Rule{
		Is{Path: "self"},
		None{},
	}}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.Error(t, p(&EvalContext{Object: obj, AuthID: 1}))
}

func TestOrSucceedsOnAnyBranch(t *testing.T) {
	obj := user(1, nil, nil)
	p, err := Or{Rules: []Rule{
		None{},
		Is{Path: "self"},
	}}.Prepare(PrepareContext{})
	require.NoError(t, err)
	assert.NoError(t, p(&EvalContext{Object: obj, AuthID: 1}))
}

func TestNotInvertsResult(t *testing.T) {
	obj := user(1, nil, nil)
	p, err := Not{Rule: Is{Path: "self"}}.Prepare(PrepareContext{})
	require.NoError(t, err)

	assert.NoError(t, p(&EvalContext{Object: obj, AuthID: 99}))
	assert.Error(t, p(&EvalContext{Object: obj, AuthID: 1}))
}

// handshake/feed scenarios mirroring contact-handshake and
// participant-count membership rules.
func TestRequestModeEvaluatesAgainstIncomingRequestNotObject(t *testing.T) {
	dbObj := user(1, map[string]any{"participants": []Subject{user(1, nil, nil)}}, nil)
	reqObj := &MapSubject{Data: map[string]any{
		"participants": []Subject{user(1, nil, nil), user(2, nil, nil), user(3, nil, nil)},
	}}

	p, err := RequestMode{Rule: Count{Path: "participants", Spec: CountSpec{Min: intPtr(3)}}}.Prepare(PrepareContext{})
	require.NoError(t, err)

	// Against the resolved object (1 participant) this would fail; the
	// request carries 3, and RequestMode must route to ctx.Request.
	err = p(&EvalContext{Object: dbObj, Request: reqObj})
	assert.NoError(t, err)
}

func TestMemberOnInvitedListGrantsHandshakeAcceptance(t *testing.T) {
	invitee := user(2, nil, nil)
	owner := user(1, map[string]any{"invited": []Subject{invitee}}, nil)

	p, err := Member{Path: "invited"}.Prepare(PrepareContext{})
	require.NoError(t, err)

	assert.NoError(t, p(&EvalContext{Object: owner, AuthID: 2}))
	assert.Error(t, p(&EvalContext{Object: owner, AuthID: 3}))
}
