package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPermissionMask(t *testing.T) {
	m := PermRead | PermWrite
	require.True(t, m.Has(PermRead))
	require.True(t, m.Has(PermWrite))
	require.False(t, m.Has(PermComment))
	require.True(t, m.Has(PermRead|PermWrite))

	require.True(t, (PermRead | PermComment).Valid())
	require.False(t, PermWrite.Valid(), "write without read is not storable")
	require.False(t, PermissionMask(0).Valid())
}

func TestShareGrantAppliesTo(t *testing.T) {
	user := NewUserID()
	stranger := NewUserID()
	dept := uuid.New()
	userUUID := user.UUID()

	all := ShareGrant{TargetType: TargetAllUsers}
	require.True(t, all.AppliesTo(user, nil))
	require.True(t, all.AppliesTo(stranger, nil))

	direct := ShareGrant{TargetType: TargetUser, TargetID: &userUUID}
	require.True(t, direct.AppliesTo(user, nil))
	require.False(t, direct.AppliesTo(stranger, nil))

	byDept := ShareGrant{TargetType: TargetDepartment, TargetID: &dept}
	require.True(t, byDept.AppliesTo(user, []uuid.UUID{dept}))
	require.False(t, byDept.AppliesTo(user, []uuid.UUID{uuid.New()}))
	require.False(t, byDept.AppliesTo(user, nil))

	// A department grant with no target applies to nobody.
	broken := ShareGrant{TargetType: TargetDepartment}
	require.False(t, broken.AppliesTo(user, []uuid.UUID{dept}))
}

func TestNoteStateHelpers(t *testing.T) {
	var n Note
	require.False(t, n.Synced(), "a draft has neither remote ID nor version")

	v := int64(1)
	n.RemoteID = NewRemoteID()
	n.Version = &v
	require.True(t, n.Synced())

	owner := NewUserID()
	n.OwnerID = owner
	require.True(t, n.OwnedBy(owner))
	require.False(t, n.OwnedBy(NewUserID()))

	// Unattributed drafts belong to whoever holds them.
	require.True(t, (&Note{}).OwnedBy(NewUserID()))
}

func TestRemoteIDJSONNullWhenZero(t *testing.T) {
	data, err := json.Marshal(Note{})
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "null", string(decoded["remote_id"]), "a draft serializes with a null remote ID")

	var n Note
	require.NoError(t, json.Unmarshal(data, &n))
	require.True(t, n.RemoteID.IsZero())
}

func TestTypedIDParseRoundTrip(t *testing.T) {
	raw := uuid.New()
	require.Equal(t, raw, NewNoteIDFromUUID(raw).UUID())
	require.Equal(t, raw, NewUserIDFromUUID(raw).UUID())

	g := NewGrantID()
	parsed, err := ParseGrantID(g.String())
	require.NoError(t, err)
	require.Equal(t, g, parsed)

	_, err = ParseGrantID("not-a-uuid")
	require.Error(t, err)
}

func TestNoteIDClientKeyRoundTrip(t *testing.T) {
	id := NewNoteID()
	parsed, err := ParseNoteID(id.ClientKey())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestShareTargetTypeNeedsTarget(t *testing.T) {
	require.False(t, TargetAllUsers.NeedsTarget())
	require.True(t, TargetDepartment.NeedsTarget())
	require.True(t, TargetUser.NeedsTarget())
}
