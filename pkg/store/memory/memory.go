// Package memory provides a complete in-memory implementation of the
// [github.com/noteboard/noteboard/pkg/store.Backend] interface.
//
// It implements the same optimistic-concurrency and permission semantics as
// the PostgreSQL store, which makes it the backend of choice for tests and
// for running the development server without a database. State lives behind
// a single mutex and is lost on process exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

// Store is an in-memory Backend. The zero value is not usable; create
// instances with New.
type Store struct {
	mu sync.Mutex

	notes       map[models.RemoteID]*models.Note
	byClientKey map[string]models.RemoteID
	grants      map[models.RemoteID][]models.ShareGrant
	targets     []models.ShareTarget

	// departments maps a user to the departments they belong to, used when
	// resolving department-targeted grants. Seeded via SetDepartments.
	departments map[models.UserID][]uuid.UUID
}

var _ store.Backend = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		notes:       make(map[models.RemoteID]*models.Note),
		byClientKey: make(map[string]models.RemoteID),
		grants:      make(map[models.RemoteID][]models.ShareGrant),
		departments: make(map[models.UserID][]uuid.UUID),
	}
}

// AddShareTarget seeds a row of the sharable-target directory. The directory
// is otherwise maintained by the surrounding user administration, which is
// out of scope here.
func (s *Store) AddShareTarget(t models.ShareTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, t)
}

// SetDepartments records the departments a user belongs to.
func (s *Store) SetDepartments(user models.UserID, departments ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[user] = departments
}

// List implements store.Backend. Results are ordered by creation time so
// snapshots are stable across calls.
func (s *Store) List(ctx context.Context, auth models.UserID) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Note
	for id, n := range s.notes {
		if n.OwnerID == auth {
			out = append(out, s.snapshot(n, 0))
			continue
		}
		if mask := s.effectiveMask(id, auth); mask != 0 {
			out = append(out, s.snapshot(n, mask))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ClientKey < out[j].ClientKey
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// snapshot copies a row for hand-out, attaching the caller's effective mask
// and the session-local ID reconstructed from the client key.
func (s *Store) snapshot(n *models.Note, mask models.PermissionMask) models.Note {
	cp := *n
	cp.Permissions = mask
	if id, err := models.ParseNoteID(cp.ClientKey); err == nil {
		cp.ID = id
	}
	return cp
}

// effectiveMask resolves the caller's permissions on a note they do not own.
// The first applicable grant wins; a note carries at most one active policy
// anyway.
func (s *Store) effectiveMask(id models.RemoteID, auth models.UserID) models.PermissionMask {
	for _, g := range s.grants[id] {
		if g.AppliesTo(auth, s.departments[auth]) {
			return g.Permissions
		}
	}
	return 0
}

// BulkUpsert implements store.Backend with the full OCC protocol: creates
// are idempotent via client key, updates are version-checked, and writes to
// shared-in notes require the write bit.
func (s *Store) BulkUpsert(ctx context.Context, auth models.UserID, entries []store.UpsertEntry) ([]store.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]store.UpsertResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, s.applyEntry(auth, e))
	}
	return results, nil
}

func (s *Store) applyEntry(auth models.UserID, e store.UpsertEntry) store.UpsertResult {
	if e.ClientKey == "" {
		return rejected(e.ClientKey, "missing client key")
	}

	if e.RemoteID.IsZero() {
		// Creation path. A retried create, including a repeated cache
		// migration, finds the row from the earlier attempt by client key
		// and is acknowledged without inserting a duplicate.
		if id, ok := s.byClientKey[e.ClientKey]; ok {
			row := s.notes[id]
			return accepted(e.ClientKey, id, *row.Version)
		}
		row := e.Data
		row.RemoteID = models.NewRemoteID()
		row.ClientKey = e.ClientKey
		row.OwnerID = auth
		v := int64(1)
		row.Version = &v
		now := time.Now()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		s.notes[row.RemoteID] = &row
		s.byClientKey[e.ClientKey] = row.RemoteID
		return accepted(e.ClientKey, row.RemoteID, v)
	}

	row, exists := s.notes[e.RemoteID]
	if !exists {
		return rejected(e.ClientKey, "note not found")
	}
	if row.OwnerID != auth && !s.effectiveMask(e.RemoteID, auth).Has(models.PermWrite) {
		return rejected(e.ClientKey, "permission denied")
	}
	if e.Version == nil || *e.Version != *row.Version {
		return store.UpsertResult{ClientKey: e.ClientKey, Status: store.StatusConflict}
	}

	// Accepted write: replace the client-mutable fields and advance the
	// version. Ownership, identity, and creation time never change.
	row.X, row.Y = e.Data.X, e.Data.Y
	row.Width, row.Height = e.Data.Width, e.Data.Height
	row.RotationDegrees = e.Data.RotationDegrees
	row.ColorIndex = e.Data.ColorIndex
	row.ZOrder = e.Data.ZOrder
	row.ViewportWidth = e.Data.ViewportWidth
	row.ViewportHeight = e.Data.ViewportHeight
	row.Content = e.Data.Content
	row.UpdatedAt = time.Now()
	*row.Version++
	return accepted(e.ClientKey, row.RemoteID, *row.Version)
}

func accepted(key string, id models.RemoteID, version int64) store.UpsertResult {
	v := version
	return store.UpsertResult{ClientKey: key, Status: store.StatusOK, RemoteID: id, Version: &v}
}

func rejected(key, reason string) store.UpsertResult {
	return store.UpsertResult{ClientKey: key, Status: store.StatusRejected, Reason: reason}
}

// Delete implements store.Backend. Owner only.
func (s *Store) Delete(ctx context.Context, auth models.UserID, id models.RemoteID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.notes[id]
	if !exists {
		return false, nil
	}
	if row.OwnerID != auth {
		return false, store.ErrPermissionDenied
	}
	delete(s.notes, id)
	delete(s.byClientKey, row.ClientKey)
	delete(s.grants, id)
	return true, nil
}

// ClearAll implements store.Backend: deletes only the caller's own notes.
func (s *Store) ClearAll(ctx context.Context, auth models.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for id, row := range s.notes {
		if row.OwnerID != auth {
			continue
		}
		delete(s.notes, id)
		delete(s.byClientKey, row.ClientKey)
		delete(s.grants, id)
		cleared++
	}
	return cleared, nil
}

// ShareGrant implements store.Backend: revoke-then-grant, single active
// policy per note.
func (s *Store) ShareGrant(ctx context.Context, auth models.UserID, grant models.ShareGrant) (models.ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.notes[grant.NoteRemoteID]
	if !exists {
		return models.ShareGrant{}, store.ErrNotFound
	}
	if row.OwnerID != auth {
		return models.ShareGrant{}, store.ErrPermissionDenied
	}
	if !grant.Permissions.Valid() {
		return models.ShareGrant{}, fmt.Errorf("invalid permission mask %d: grants must include read access", grant.Permissions)
	}
	if grant.TargetType.NeedsTarget() && grant.TargetID == nil {
		return models.ShareGrant{}, fmt.Errorf("target type %q requires a target", grant.TargetType)
	}

	grant.ID = models.NewGrantID()
	grant.CreatedAt = time.Now()
	s.grants[grant.NoteRemoteID] = []models.ShareGrant{grant}
	return grant, nil
}

// ShareRevoke implements store.Backend.
func (s *Store) ShareRevoke(ctx context.Context, auth models.UserID, noteID models.RemoteID, targetType models.ShareTargetType, targetID *uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.notes[noteID]
	if !exists {
		return false, store.ErrNotFound
	}
	if row.OwnerID != auth {
		return false, store.ErrPermissionDenied
	}

	kept := s.grants[noteID][:0]
	revoked := false
	for _, g := range s.grants[noteID] {
		if g.TargetType == targetType && equalTarget(g.TargetID, targetID) {
			revoked = true
			continue
		}
		kept = append(kept, g)
	}
	s.grants[noteID] = kept
	return revoked, nil
}

// ShareList implements store.Backend. Owner only.
func (s *Store) ShareList(ctx context.Context, auth models.UserID, noteID models.RemoteID) ([]models.ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.notes[noteID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if row.OwnerID != auth {
		return nil, store.ErrPermissionDenied
	}
	return append([]models.ShareGrant(nil), s.grants[noteID]...), nil
}

// ListShareTargets implements store.Backend.
func (s *Store) ListShareTargets(ctx context.Context, auth models.UserID) ([]models.ShareTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ShareTarget(nil), s.targets...), nil
}

func equalTarget(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
