package board

import (
	"context"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

// settleBatch applies the per-note outcomes of one bulk upsert.
//
// A transport failure leaves the dirty set untouched so the next cycle
// retries the whole batch. Per-note outcomes are final: ok adopts the
// server's identity and version, rejected is surfaced and dropped, and
// conflict discards the local draft in favor of a fresh server read
// (last-committed-wins at note granularity; fields are never merged).
func (s *Session) settleBatch(batch map[models.NoteID]uint64, results []store.UpsertResult, err error) {
	if err != nil {
		s.log.Warn().Err(err).Int("notes", len(batch)).Msg("bulk upsert failed, will retry")
		s.mu.Lock()
		s.notifyStatusLocked(SyncOffline)
		s.finishBatchLocked(false)
		s.mu.Unlock()
		s.runPendingFuncs()
		return
	}

	var conflicted []models.NoteID

	s.mu.Lock()
	for _, res := range results {
		id, perr := models.ParseNoteID(res.ClientKey)
		if perr != nil {
			s.log.Warn().Str("client_key", res.ClientKey).Msg("upsert result with unusable client key")
			continue
		}
		gen, inBatch := batch[id]
		if !inBatch {
			continue
		}

		switch res.Status {
		case store.StatusOK:
			if n, ok := s.notes[id]; ok {
				n.RemoteID = res.RemoteID
				n.Version = res.Version
				if n.OwnerID.IsZero() {
					n.OwnerID = s.cfg.User
				}
			}
			s.dirty.clear(id, gen)

		case store.StatusRejected:
			// Not retried: resending the same payload would fail the
			// same way. The note keeps its local state so the user can
			// copy their text out.
			s.dirty.forget(id)
			if cb := s.cfg.Events.SaveRejected; cb != nil {
				reason := res.Reason
				s.pendingFuncs = append(s.pendingFuncs, func() { cb(id, reason) })
			}

		case store.StatusConflict:
			// Forgotten, not retried: retrying with the stale version
			// would conflict again. Rehydration below replaces the draft.
			s.dirty.forget(id)
			conflicted = append(conflicted, id)
		}
	}
	s.finishBatchLocked(true)
	s.mu.Unlock()
	s.runPendingFuncs()

	if len(conflicted) > 0 {
		s.resolveConflicts(conflicted)
	}
	s.persistCache()
}

// resolveConflicts fetches a fresh server listing and rehydrates the given
// notes from it. Server-owned fields (remote ID, version, owner, permission
// mask) and the content always come from the server; geometry also does,
// unless the note is held mid-drag, in which case the in-progress gesture
// wins and the next save round-trips it.
func (s *Session) resolveConflicts(ids []models.NoteID) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RequestTimeout)
	rows, err := s.cfg.Backend.List(ctx, s.cfg.User)
	cancel()
	if err != nil {
		// The notes are no longer dirty, so they will not be retried; a
		// later refresh picks up the server state instead.
		s.log.Warn().Err(err).Msg("conflict rehydration fetch failed")
		return
	}

	byKey := make(map[string]models.Note, len(rows))
	for _, row := range rows {
		byKey[row.ClientKey] = row
	}

	type editorUpdate struct {
		editor  Editor
		content string
	}
	var updates []editorUpdate

	s.mu.Lock()
	for _, id := range ids {
		n, ok := s.notes[id]
		if !ok {
			continue
		}
		row, found := byKey[id.ClientKey()]
		if !found {
			// Gone on the server (deleted or unshared); drop it locally.
			delete(s.notes, id)
			delete(s.held, id)
			delete(s.editor, id)
			continue
		}
		if s.dirty.contains(id) {
			// Re-edited after the conflict was detected; the new draft
			// supersedes rehydration and the next save decides.
			continue
		}

		n.RemoteID = row.RemoteID
		n.Version = row.Version
		n.OwnerID = row.OwnerID
		n.Permissions = row.Permissions
		n.Content = row.Content
		if _, heldNow := s.held[id]; !heldNow {
			g := row
			s.rehydrateGeometry(&g)
			n.X, n.Y = g.X, g.Y
			n.Width, n.Height = g.Width, g.Height
			n.RotationDegrees = g.RotationDegrees
			n.ZOrder = g.ZOrder
			if n.ZOrder > s.zTop {
				s.zTop = n.ZOrder
			}
			n.ViewportWidth = g.ViewportWidth
			n.ViewportHeight = g.ViewportHeight
		}

		if e, attached := s.editor[id]; attached {
			updates = append(updates, editorUpdate{editor: e, content: row.Content})
		}
		if cb := s.cfg.Events.ConflictResolved; cb != nil {
			noteID := id
			s.pendingFuncs = append(s.pendingFuncs, func() { cb(noteID) })
		}
	}
	s.mu.Unlock()

	for _, u := range updates {
		u.editor.SetContent(u.content)
	}
	s.runPendingFuncs()
}
