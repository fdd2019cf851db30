// Package store defines the backend boundary the sync engine talks to: the
// shared multi-user note store reached over the network.
//
// The [Backend] interface is intentionally small. It is the authoritative
// side of the optimistic concurrency protocol: every accepted write advances
// a note's version, and a bulk upsert reports a per-entry outcome of ok,
// conflict, or rejected keyed by the entry's client key. The engine in
// pkg/board never resolves conflicts itself; it reacts to these outcomes.
//
// Two implementations ship with the repository:
//   - [github.com/noteboard/noteboard/pkg/store/memory.Store]: a complete
//     in-memory backend used by the development server and by tests
//   - [github.com/noteboard/noteboard/pkg/store/postgres.Store]: the
//     production backend using GORM over PostgreSQL
//
// The HTTP client in pkg/client also implements [Backend], so the engine
// runs identically against a live service or an in-process store.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noteboard/noteboard/pkg/models"
)

// ErrPermissionDenied is returned by operations restricted to a note's
// owner when called by anyone else. Within a bulk upsert the same condition
// is reported per entry as a rejected result instead of an error, so one
// unauthorized entry cannot fail the whole batch.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNotFound is returned when a referenced note does not exist.
var ErrNotFound = errors.New("note not found")

// UpsertStatus is the per-entry outcome of a bulk upsert.
type UpsertStatus string

const (
	// StatusOK means the write was accepted; the result carries the note's
	// remote ID and its new version.
	StatusOK UpsertStatus = "ok"
	// StatusConflict means the submitted version no longer matches the
	// server's current version: another writer committed first.
	StatusConflict UpsertStatus = "conflict"
	// StatusRejected means the write was refused outright, for example for
	// lack of write permission. The reason field says why.
	StatusRejected UpsertStatus = "rejected"
)

// UpsertEntry is one note in a bulk upsert request. A zero RemoteID together
// with a nil Version marks a new note; the ClientKey makes creation
// idempotent across retries because the server maps it back to the row a
// previous attempt may already have created.
type UpsertEntry struct {
	RemoteID  models.RemoteID `json:"remote_id"`
	ClientKey string          `json:"client_key"`
	Version   *int64          `json:"version"`
	Data      models.Note     `json:"data"`
}

// UpsertResult is the per-entry outcome, keyed by ClientKey.
type UpsertResult struct {
	ClientKey string          `json:"client_key"`
	Status    UpsertStatus    `json:"status"`
	RemoteID  models.RemoteID `json:"remote_id,omitempty"`
	Version   *int64          `json:"version,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// OK reports whether the entry was accepted.
func (r UpsertResult) OK() bool { return r.Status == StatusOK }

// Backend is the shared note store consumed by the sync engine.
//
// All methods take the authenticated caller explicitly; the surrounding
// service derives it from the request, in-process callers pass it directly.
// Implementations must be safe for concurrent use.
type Backend interface {
	// List returns the full snapshot of notes visible to the caller: notes
	// the caller owns plus notes shared in to them. For shared-in notes the
	// Permissions field carries the caller's effective mask.
	List(ctx context.Context, auth models.UserID) ([]models.Note, error)

	// BulkUpsert applies a batch of creates and updates and returns one
	// result per entry, in entry order, keyed by client key. Entry failures
	// are reported in the results, never as a batch error; the returned
	// error is reserved for transport or storage failures affecting the
	// whole call.
	BulkUpsert(ctx context.Context, auth models.UserID, entries []UpsertEntry) ([]UpsertResult, error)

	// Delete removes a single note. Only the owner may delete; anyone else
	// gets ErrPermissionDenied. Returns whether a row was deleted.
	Delete(ctx context.Context, auth models.UserID, id models.RemoteID) (bool, error)

	// ClearAll deletes every note owned by the caller and returns how many
	// were removed. Notes shared in to the caller are never affected.
	ClearAll(ctx context.Context, auth models.UserID) (int, error)

	// ShareGrant replaces the note's sharing policy with the given grant.
	// All existing grants for the note are revoked first; sharing is a
	// single active policy, not an accumulating list. Owner only.
	ShareGrant(ctx context.Context, auth models.UserID, grant models.ShareGrant) (models.ShareGrant, error)

	// ShareRevoke removes the grant matching the (note, target type, target)
	// tuple. Owner only. Returns whether a grant was removed.
	ShareRevoke(ctx context.Context, auth models.UserID, noteID models.RemoteID, targetType models.ShareTargetType, targetID *uuid.UUID) (bool, error)

	// ShareList returns the note's current grants. Owner only.
	ShareList(ctx context.Context, auth models.UserID, noteID models.RemoteID) ([]models.ShareGrant, error)

	// ListShareTargets returns the directory of audiences notes can be
	// shared with: users and departments.
	ListShareTargets(ctx context.Context, auth models.UserID) ([]models.ShareTarget, error)
}
