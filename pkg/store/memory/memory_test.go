package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

func newEntry(note models.Note) store.UpsertEntry {
	if note.ID.IsZero() {
		note.ID = models.NewNoteID()
	}
	note.ClientKey = note.ID.ClientKey()
	return store.UpsertEntry{ClientKey: note.ClientKey, Data: note}
}

func createNote(t *testing.T, s *Store, owner models.UserID, content string) store.UpsertResult {
	t.Helper()
	results, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{newEntry(models.Note{Content: content})})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].OK(), "create should be accepted: %+v", results[0])
	return results[0]
}

func TestCreateAssignsIdentityAndVersion(t *testing.T) {
	s := New()
	owner := models.NewUserID()

	res := createNote(t, s, owner, "<b>hello</b>")
	require.False(t, res.RemoteID.IsZero(), "server must assign a remote ID")
	require.NotNil(t, res.Version)
	require.Equal(t, int64(1), *res.Version, "first version is 1")

	notes, err := s.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, owner, notes[0].OwnerID)
	require.Equal(t, res.RemoteID, notes[0].RemoteID)
}

func TestCreateIdempotentByClientKey(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	entry := newEntry(models.Note{Content: "once"})

	first, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{entry})
	require.NoError(t, err)
	// Retry of the same create, as after a lost response.
	second, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{entry})
	require.NoError(t, err)

	require.True(t, second[0].OK())
	require.Equal(t, first[0].RemoteID, second[0].RemoteID, "retried create maps to the same row")
	require.Equal(t, *first[0].Version, *second[0].Version, "acknowledged without a new version")

	notes, err := s.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, notes, 1, "no duplicate row")
}

func TestUpdateAdvancesVersion(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	created := createNote(t, s, owner, "v1")

	results, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{{
		RemoteID:  created.RemoteID,
		ClientKey: created.ClientKey,
		Version:   created.Version,
		Data:      models.Note{Content: "v2"},
	}})
	require.NoError(t, err)
	require.True(t, results[0].OK())
	require.Equal(t, int64(2), *results[0].Version)

	notes, _ := s.List(context.Background(), owner)
	require.Equal(t, "v2", notes[0].Content)
}

func TestStaleVersionConflicts(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	created := createNote(t, s, owner, "base")
	stale := *created.Version

	// A first writer commits and advances the version.
	_, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{{
		RemoteID: created.RemoteID, ClientKey: created.ClientKey, Version: &stale,
		Data: models.Note{Content: "winner"},
	}})
	require.NoError(t, err)

	// The second writer still holds the stale version.
	results, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{{
		RemoteID: created.RemoteID, ClientKey: created.ClientKey, Version: &stale,
		Data: models.Note{Content: "loser"},
	}})
	require.NoError(t, err)
	require.Equal(t, store.StatusConflict, results[0].Status)

	notes, _ := s.List(context.Background(), owner)
	require.Equal(t, "winner", notes[0].Content, "conflicting write must not apply")
}

func TestWriteWithoutPermissionRejected(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	other := models.NewUserID()
	created := createNote(t, s, owner, "mine")

	results, err := s.BulkUpsert(context.Background(), other, []store.UpsertEntry{{
		RemoteID: created.RemoteID, ClientKey: created.ClientKey, Version: created.Version,
		Data: models.Note{Content: "theirs"},
	}})
	require.NoError(t, err, "entry failures are results, not batch errors")
	require.Equal(t, store.StatusRejected, results[0].Status)
	require.Equal(t, "permission denied", results[0].Reason)
}

func TestSharedWriteBitAllowsUpdate(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	other := models.NewUserID()
	created := createNote(t, s, owner, "shared")

	_, err := s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID,
		TargetType:   models.TargetAllUsers,
		Permissions:  models.PermRead | models.PermWrite,
	})
	require.NoError(t, err)

	results, err := s.BulkUpsert(context.Background(), other, []store.UpsertEntry{{
		RemoteID: created.RemoteID, ClientKey: created.ClientKey, Version: created.Version,
		Data: models.Note{Content: "edited by grantee"},
	}})
	require.NoError(t, err)
	require.True(t, results[0].OK())
}

func TestReadOnlyGrantRejectsWrite(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	other := models.NewUserID()
	created := createNote(t, s, owner, "read only")

	_, err := s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID,
		TargetType:   models.TargetAllUsers,
		Permissions:  models.PermRead,
	})
	require.NoError(t, err)

	results, err := s.BulkUpsert(context.Background(), other, []store.UpsertEntry{{
		RemoteID: created.RemoteID, ClientKey: created.ClientKey, Version: created.Version,
		Data: models.Note{Content: "nope"},
	}})
	require.NoError(t, err)
	require.Equal(t, store.StatusRejected, results[0].Status)
}

func TestListIncludesSharedWithMask(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	other := models.NewUserID()
	created := createNote(t, s, owner, "visible")

	notes, err := s.List(context.Background(), other)
	require.NoError(t, err)
	require.Empty(t, notes, "unshared notes are invisible to others")

	_, err = s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID,
		TargetType:   models.TargetUser,
		TargetID:     ptr(other.UUID()),
		Permissions:  models.PermRead | models.PermComment,
	})
	require.NoError(t, err)

	notes, err = s.List(context.Background(), other)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, models.PermRead|models.PermComment, notes[0].Permissions)
}

func TestDepartmentGrant(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	member := models.NewUserID()
	outsider := models.NewUserID()
	dept := uuid.New()
	s.SetDepartments(member, dept)
	created := createNote(t, s, owner, "dept note")

	_, err := s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID,
		TargetType:   models.TargetDepartment,
		TargetID:     &dept,
		Permissions:  models.PermRead,
	})
	require.NoError(t, err)

	notes, _ := s.List(context.Background(), member)
	require.Len(t, notes, 1)
	notes, _ = s.List(context.Background(), outsider)
	require.Empty(t, notes)
}

func TestShareGrantReplacesPolicy(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	created := createNote(t, s, owner, "policy")

	_, err := s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID, TargetType: models.TargetAllUsers,
		Permissions: models.PermRead,
	})
	require.NoError(t, err)

	target := models.NewUserID()
	_, err = s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID, TargetType: models.TargetUser,
		TargetID: ptr(target.UUID()), Permissions: models.PermRead | models.PermWrite,
	})
	require.NoError(t, err)

	grants, err := s.ShareList(context.Background(), owner, created.RemoteID)
	require.NoError(t, err)
	require.Len(t, grants, 1, "a note carries a single active policy")
	require.Equal(t, models.TargetUser, grants[0].TargetType)
}

func TestShareGrantValidation(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	created := createNote(t, s, owner, "v")

	// Write without read is not a representable policy.
	_, err := s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID, TargetType: models.TargetAllUsers,
		Permissions: models.PermWrite,
	})
	require.Error(t, err)

	// Department target requires a target ID.
	_, err = s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID, TargetType: models.TargetDepartment,
		Permissions: models.PermRead,
	})
	require.Error(t, err)

	// Only the owner can share.
	_, err = s.ShareGrant(context.Background(), models.NewUserID(), models.ShareGrant{
		NoteRemoteID: created.RemoteID, TargetType: models.TargetAllUsers,
		Permissions: models.PermRead,
	})
	require.ErrorIs(t, err, store.ErrPermissionDenied)
}

func TestShareRevoke(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	other := models.NewUserID()
	created := createNote(t, s, owner, "r")

	_, err := s.ShareGrant(context.Background(), owner, models.ShareGrant{
		NoteRemoteID: created.RemoteID, TargetType: models.TargetUser,
		TargetID: ptr(other.UUID()), Permissions: models.PermRead,
	})
	require.NoError(t, err)

	revoked, err := s.ShareRevoke(context.Background(), owner, created.RemoteID, models.TargetUser, ptr(other.UUID()))
	require.NoError(t, err)
	require.True(t, revoked)

	notes, _ := s.List(context.Background(), other)
	require.Empty(t, notes, "revoked grant no longer lists the note")

	revoked, err = s.ShareRevoke(context.Background(), owner, created.RemoteID, models.TargetUser, ptr(other.UUID()))
	require.NoError(t, err)
	require.False(t, revoked, "revoking twice reports nothing removed")
}

func TestDeleteOwnerOnly(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	other := models.NewUserID()
	created := createNote(t, s, owner, "d")

	_, err := s.Delete(context.Background(), other, created.RemoteID)
	require.ErrorIs(t, err, store.ErrPermissionDenied)

	deleted, err := s.Delete(context.Background(), owner, created.RemoteID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = s.Delete(context.Background(), owner, created.RemoteID)
	require.NoError(t, err)
	require.False(t, deleted, "deleting a missing note is not an error")
}

func TestClearAllOnlyOwnNotes(t *testing.T) {
	s := New()
	alice := models.NewUserID()
	bob := models.NewUserID()
	createNote(t, s, alice, "a1")
	createNote(t, s, alice, "a2")
	bobNote := createNote(t, s, bob, "b1")

	// Bob shares his note with everyone; it shows up in Alice's listing but
	// is still Bob's.
	_, err := s.ShareGrant(context.Background(), bob, models.ShareGrant{
		NoteRemoteID: bobNote.RemoteID, TargetType: models.TargetAllUsers,
		Permissions: models.PermRead,
	})
	require.NoError(t, err)

	cleared, err := s.ClearAll(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, 2, cleared)

	bobNotes, _ := s.List(context.Background(), bob)
	require.Len(t, bobNotes, 1, "clearing Alice's board must not touch Bob's notes")
}

func TestListReconstructsSessionID(t *testing.T) {
	s := New()
	owner := models.NewUserID()
	id := models.NewNoteID()
	_, err := s.BulkUpsert(context.Background(), owner, []store.UpsertEntry{{
		ClientKey: id.ClientKey(),
		Data:      models.Note{Content: "x"},
	}})
	require.NoError(t, err)

	notes, err := s.List(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, id, notes[0].ID, "session ID round-trips through the client key")
}

func ptr(u uuid.UUID) *uuid.UUID { return &u }
