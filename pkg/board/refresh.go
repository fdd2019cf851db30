package board

import (
	"context"
	"fmt"
	"time"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

// Start bootstraps the session's collection.
//
// The backend is the source of truth when reachable. If it is unreachable
// the cached snapshot is shown instead and the session starts offline. If
// the backend is reachable but empty while the cache holds notes, the
// cached notes are migrated up once: pushed in a single bulk upsert, then
// read back so the session adopts the server-assigned identities. A second
// Start after a successful migration finds a non-empty server and never
// migrates again, so the migration is idempotent.
func (s *Session) Start(ctx context.Context) error {
	rows, err := s.cfg.Backend.List(ctx, s.cfg.User)
	if err != nil {
		s.log.Warn().Err(err).Msg("backend unreachable, starting from local cache")
		cached := s.loadCache()
		s.mu.Lock()
		s.hydrateLocked(cached)
		s.notifyStatusLocked(SyncOffline)
		s.mu.Unlock()
		s.runPendingFuncs()
		return nil
	}

	if len(rows) == 0 {
		if cached := s.loadCache(); len(cached) > 0 {
			rows, err = s.migrate(ctx, cached)
			if err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	s.hydrateLocked(rows)
	s.notifyStatusLocked(SyncSaved)
	s.mu.Unlock()
	s.runPendingFuncs()
	s.persistCache()
	return nil
}

// migrate pushes a cached snapshot to an empty server and reads the result
// back. Only notes owned by the session user are pushed; a cached copy of a
// note shared in by someone else is theirs to migrate.
func (s *Session) migrate(ctx context.Context, cached []models.Note) ([]models.Note, error) {
	entries := make([]store.UpsertEntry, 0, len(cached))
	for _, n := range cached {
		if !n.OwnerID.IsZero() && !n.OwnedBy(s.cfg.User) {
			continue
		}
		n.RemoteID = models.RemoteID{}
		n.Version = nil
		n.OwnerID = s.cfg.User
		if n.ClientKey == "" && !n.ID.IsZero() {
			n.ClientKey = n.ID.ClientKey()
		}
		entries = append(entries, store.UpsertEntry{
			ClientKey: n.ClientKey,
			Data:      n,
		})
	}
	if len(entries) == 0 {
		return nil, nil
	}

	s.log.Info().Int("notes", len(entries)).Msg("migrating cached notes to empty server")
	if _, err := s.cfg.Backend.BulkUpsert(ctx, s.cfg.User, entries); err != nil {
		return nil, fmt.Errorf("failed to migrate cached notes: %w", err)
	}
	rows, err := s.cfg.Backend.List(ctx, s.cfg.User)
	if err != nil {
		return nil, fmt.Errorf("failed to read back migrated notes: %w", err)
	}
	return rows, nil
}

// Refresh fetches a fresh server listing and rehydrates the collection.
//
// Refreshes are gated by a request sequence: starting a new one cancels and
// supersedes any in flight, and a response whose sequence is no longer
// current is discarded, so a slow early response can never overwrite the
// result of a later one. Dirty notes are skipped at application time, after
// the response arrives, so edits made while the request was in flight are
// also protected.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.refreshSeq++
	seq := s.refreshSeq
	if s.refreshCancel != nil {
		s.refreshCancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	s.refreshCancel = cancel
	s.mu.Unlock()

	rows, err := s.cfg.Backend.List(reqCtx, s.cfg.User)

	s.mu.Lock()
	if seq != s.refreshSeq || s.closed {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.refreshCancel = nil
	if err != nil {
		s.notifyStatusLocked(SyncOffline)
		s.mu.Unlock()
		cancel()
		s.runPendingFuncs()
		return fmt.Errorf("failed to refresh notes: %w", err)
	}
	s.hydrateLocked(rows)
	if s.sched == schedIdle && s.dirty.len() == 0 {
		s.notifyStatusLocked(SyncSaved)
	}
	s.mu.Unlock()
	cancel()
	s.runPendingFuncs()
	s.persistCache()
	return nil
}

// RefreshNote is the soft refresh triggered when a note regains focus. It
// runs a full Refresh, rate-limited per note so rapid focus flapping does
// not hammer the backend. Returns true if a refresh was actually issued.
func (s *Session) RefreshNote(ctx context.Context, id models.NoteID) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if last, ok := s.softRefreshed[id]; ok && time.Since(last) < s.cfg.SoftRefreshInterval {
		s.mu.Unlock()
		return false, nil
	}
	s.softRefreshed[id] = time.Now()
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		// A failed attempt must not consume the suppression window.
		s.mu.Lock()
		delete(s.softRefreshed, id)
		s.mu.Unlock()
		return true, err
	}
	return true, nil
}

// loadCache returns the cached snapshot, or nil when no cache is configured
// or it cannot be read. Cache read failures degrade to an empty board.
func (s *Session) loadCache() []models.Note {
	if s.cfg.Cache == nil {
		return nil
	}
	notes, err := s.cfg.Cache.LoadNotes()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load local cache")
		return nil
	}
	return notes
}
