package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noteboard/noteboard/pkg/localcache"
	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/sanitize"
	"github.com/noteboard/noteboard/pkg/store"
)

// Viewport describes the drawing surface the note geometry is relative to.
type Viewport struct {
	Width  float64
	Height float64
}

// SyncStatus is the coarse state reported to the user-visible indicator.
type SyncStatus string

const (
	SyncSaving  SyncStatus = "saving"
	SyncSaved   SyncStatus = "saved"
	SyncOffline SyncStatus = "offline"
)

// Editor is the live editing surface of a single note. When a conflict is
// resolved against the server's state, an attached editor has its visible
// content replaced synchronously so the user is never silently out of sync.
type Editor interface {
	SetContent(content string)
}

// Events are optional callbacks the session invokes on state changes. All
// callbacks are invoked without the session lock held and may call back
// into the session. Nil callbacks are skipped.
type Events struct {
	// SyncStatus reports transitions of the save indicator.
	SyncStatus func(status SyncStatus)
	// ConflictResolved reports that a note lost a write race and was
	// rehydrated from the server. Informational, not an error.
	ConflictResolved func(id models.NoteID)
	// SaveRejected reports a write the server refused outright.
	SaveRejected func(id models.NoteID, reason string)
}

// Config configures a Session.
type Config struct {
	// Backend is the shared store; required.
	Backend store.Backend
	// Cache is the local persistent fallback; optional.
	Cache *localcache.Cache
	// User is the authenticated session user; required.
	User models.UserID
	// Viewport is the current drawing surface size, used to rehydrate
	// geometry saved under a different viewport.
	Viewport Viewport

	// Debounce is the quiet period between the last local mutation and the
	// batch push. Defaults to 900ms.
	Debounce time.Duration
	// SoftRefreshInterval rate-limits per-note refreshes triggered by focus
	// changes. Defaults to 15s.
	SoftRefreshInterval time.Duration
	// RequestTimeout bounds background network calls issued by the
	// scheduler. Defaults to 30s.
	RequestTimeout time.Duration
	// MinMargin is the minimum distance, in viewport units, kept between a
	// rehydrated note and the viewport edge. Defaults to 8.
	MinMargin float64

	Logger zerolog.Logger
	Events Events
}

const (
	defaultDebounce       = 900 * time.Millisecond
	defaultSoftRefresh    = 15 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultMinMargin      = 8.0
)

// Session is the synchronization engine for one open board. Create with
// NewSession, bootstrap with Start, release with Close.
type Session struct {
	cfg Config
	log zerolog.Logger

	// baseCtx parents every background request; Close cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool

	notes  map[models.NoteID]*models.Note
	zTop   int
	dirty  *dirtyTracker
	held   map[models.NoteID]struct{}
	editor map[models.NoteID]Editor

	// Scheduler state machine; see scheduler.go.
	sched        schedulerState
	timer        *time.Timer
	retrigger    bool
	lastStatus   SyncStatus
	pendingFuncs []func()

	// Read-path gating; see refresh.go.
	refreshSeq    uint64
	refreshCancel context.CancelFunc
	softRefreshed map[models.NoteID]time.Time

	// Share ACL cache; see acl.go.
	grantCache  map[models.RemoteID][]models.ShareGrant
	targetCache []models.ShareTarget
}

// NewSession creates the engine for one board. The session holds no notes
// until Start (or Hydrate) populates it.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("board: config requires a backend")
	}
	if cfg.User.IsZero() {
		return nil, fmt.Errorf("board: config requires a session user")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.SoftRefreshInterval <= 0 {
		cfg.SoftRefreshInterval = defaultSoftRefresh
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MinMargin <= 0 {
		cfg.MinMargin = defaultMinMargin
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:           cfg,
		log:           cfg.Logger.With().Str("component", "board").Logger(),
		baseCtx:       ctx,
		cancel:        cancel,
		notes:         make(map[models.NoteID]*models.Note),
		dirty:         newDirtyTracker(),
		held:          make(map[models.NoteID]struct{}),
		editor:        make(map[models.NoteID]Editor),
		softRefreshed: make(map[models.NoteID]time.Time),
		grantCache:    make(map[models.RemoteID][]models.ShareGrant),
	}, nil
}

// Close stops the scheduler and cancels in-flight background requests.
// Pending dirty state is not flushed; callers that want a final push should
// call Flush first.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	s.mu.Unlock()
	s.cancel()
}

// SetViewport records a resize of the drawing surface. Geometry already in
// the store is left as is; it was authored under the session's eye and the
// next hydration rescales whatever the server holds.
func (s *Session) SetViewport(v Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Viewport = v
}

// Note returns a copy of the note, or false if it does not exist.
func (s *Session) Note(id models.NoteID) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return models.Note{}, false
	}
	return *n, true
}

// Notes returns a snapshot of the collection ordered by z-order.
func (s *Session) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []models.Note {
	out := make([]models.Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZOrder == out[j].ZOrder {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ZOrder < out[j].ZOrder
	})
	return out
}

// Dirty reports whether the note has unsynced local mutations.
func (s *Session) Dirty(id models.NoteID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.contains(id)
}

// UpsertLocal applies a local creation or mutation. The content is
// sanitized before it is stored, the note is marked dirty, and a save is
// scheduled. Server-owned fields (remote ID, version, owner, permissions)
// are preserved from the existing entry; a mutation cannot forge them.
//
// A mutation of a note shared in without the write bit is refused with
// ErrPermissionDenied before anything is stored or scheduled. The check
// runs against the last hydrated permission mask; the server remains the
// authority and still rejects a write the mask was too stale to catch.
func (s *Session) UpsertLocal(note models.Note) (models.NoteID, error) {
	note.Content = sanitize.Sanitize(note.Content)

	s.mu.Lock()
	if note.ID.IsZero() {
		note.ID = models.NewNoteID()
	}
	note.ClientKey = note.ID.ClientKey()

	if existing, ok := s.notes[note.ID]; ok {
		if !existing.OwnedBy(s.cfg.User) && !existing.Permissions.Has(models.PermWrite) {
			s.mu.Unlock()
			return note.ID, fmt.Errorf("%w: note is shared without write access", ErrPermissionDenied)
		}
		note.RemoteID = existing.RemoteID
		note.Version = existing.Version
		note.OwnerID = existing.OwnerID
		note.Permissions = existing.Permissions
		note.CreatedAt = existing.CreatedAt
	} else {
		if note.OwnerID.IsZero() {
			note.OwnerID = s.cfg.User
		}
		if note.CreatedAt.IsZero() {
			note.CreatedAt = time.Now()
		}
		if note.ZOrder == 0 {
			s.zTop++
			note.ZOrder = s.zTop
		}
	}
	if note.ZOrder > s.zTop {
		s.zTop = note.ZOrder
	}
	note.ViewportWidth = s.cfg.Viewport.Width
	note.ViewportHeight = s.cfg.Viewport.Height

	stored := note
	s.notes[note.ID] = &stored
	s.dirty.markDirty(note.ID)
	s.scheduleSaveLocked()
	s.mu.Unlock()
	s.runPendingFuncs()
	return note.ID, nil
}

// BringToFront assigns the note the next z-order above everything else.
// Values are not required to be unique, only to grow monotonically; the
// session-global high-water mark generates the next one. The z-order
// syncs like any mutation, so the same write-permission rule as
// UpsertLocal applies.
func (s *Session) BringToFront(id models.NoteID) error {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if !n.OwnedBy(s.cfg.User) && !n.Permissions.Has(models.PermWrite) {
		s.mu.Unlock()
		return fmt.Errorf("%w: note is shared without write access", ErrPermissionDenied)
	}
	s.zTop++
	n.ZOrder = s.zTop
	s.dirty.markDirty(id)
	s.scheduleSaveLocked()
	s.mu.Unlock()
	s.runPendingFuncs()
	return nil
}

// Remove deletes the note from the session immediately. The server delete
// is fire-and-forget: it is not queued through the dirty tracker, and a
// failure is only logged. Only notes the session user owns may be removed.
func (s *Session) Remove(id models.NoteID) error {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if !n.OwnedBy(s.cfg.User) {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot delete a note owned by another user", ErrPermissionDenied)
	}
	remoteID := n.RemoteID
	delete(s.notes, id)
	s.dirty.forget(id)
	delete(s.held, id)
	delete(s.editor, id)
	s.mu.Unlock()

	if !remoteID.IsZero() {
		go func() {
			ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RequestTimeout)
			defer cancel()
			if _, err := s.cfg.Backend.Delete(ctx, s.cfg.User, remoteID); err != nil {
				s.log.Warn().Err(err).Stringer("remote_id", remoteID).Msg("fire-and-forget delete failed")
			}
		}()
	}
	s.persistCache()
	return nil
}

// ClearAll removes every note owned by the session user, locally and on the
// server. Notes shared in from other owners are never touched.
func (s *Session) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	for id, n := range s.notes {
		if !n.OwnedBy(s.cfg.User) {
			continue
		}
		delete(s.notes, id)
		s.dirty.forget(id)
		delete(s.held, id)
		delete(s.editor, id)
	}
	s.mu.Unlock()
	s.persistCache()

	if _, err := s.cfg.Backend.ClearAll(ctx, s.cfg.User); err != nil {
		return fmt.Errorf("failed to clear notes on server: %w", err)
	}
	return nil
}

// BeginHold marks the note's geometry as actively manipulated (a drag or
// resize in progress). While held, rehydration leaves the geometry alone so
// the server cannot yank a note out from under the pointer.
func (s *Session) BeginHold(id models.NoteID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[id] = struct{}{}
}

// EndHold releases the hold taken by BeginHold.
func (s *Session) EndHold(id models.NoteID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, id)
}

// AttachEditor registers the live editing surface for a note.
func (s *Session) AttachEditor(id models.NoteID, e Editor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor[id] = e
}

// DetachEditor removes a previously attached editor.
func (s *Session) DetachEditor(id models.NoteID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.editor, id)
}

// hydrateLocked replaces the collection with server rows mapped through the
// geometry rehydration below. Any note currently dirty is excluded: its
// server row is skipped and the local entry kept, so hydration can never
// clobber pending edits (the dirty check happens at application time, not
// at request time).
func (s *Session) hydrateLocked(rows []models.Note) {
	kept := make(map[models.NoteID]*models.Note, len(rows))

	for id, n := range s.notes {
		if s.dirty.contains(id) {
			kept[id] = n
		}
	}

	for _, row := range rows {
		if row.ID.IsZero() {
			id, err := models.ParseNoteID(row.ClientKey)
			if err != nil {
				s.log.Warn().Str("client_key", row.ClientKey).Msg("skipping server row with unusable client key")
				continue
			}
			row.ID = id
		}
		if s.dirty.contains(row.ID) {
			continue
		}
		s.rehydrateGeometry(&row)
		stored := row
		kept[row.ID] = &stored
	}

	s.notes = kept
	s.zTop = 0
	for _, n := range s.notes {
		if n.ZOrder > s.zTop {
			s.zTop = n.ZOrder
		}
	}
}

// rehydrateGeometry rescales a server row's geometry from the viewport it
// was saved under to the current one, then clamps it so the note stays
// visible. Preserving pixel-exact positions would be simpler but leaves
// notes stranded off-screen after a window resize or a cross-device resume.
func (s *Session) rehydrateGeometry(n *models.Note) {
	vw, vh := s.cfg.Viewport.Width, s.cfg.Viewport.Height
	if vw <= 0 || vh <= 0 {
		return
	}

	sx, sy := 1.0, 1.0
	if n.ViewportWidth > 0 {
		sx = vw / n.ViewportWidth
	}
	if n.ViewportHeight > 0 {
		sy = vh / n.ViewportHeight
	}

	n.X *= sx
	n.Y *= sy
	n.Width *= sx
	n.Height *= sy

	m := s.cfg.MinMargin
	n.X = clamp(n.X, m, vw-n.Width-m)
	n.Y = clamp(n.Y, m, vh-n.Height-m)
	n.ViewportWidth = vw
	n.ViewportHeight = vh
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		// The note is larger than the viewport; pin it to the margin.
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// persistCache writes the current collection to the local cache. Cache
// failures are logged, never propagated: the cache is a fallback, not a
// required write path.
func (s *Session) persistCache() {
	if s.cfg.Cache == nil {
		return
	}
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	if err := s.cfg.Cache.SaveNotes(snapshot); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist local cache")
	}
}

// notifyStatus queues a status callback; deduplicated so the indicator only
// sees transitions.
func (s *Session) notifyStatusLocked(status SyncStatus) {
	if s.cfg.Events.SyncStatus == nil || s.lastStatus == status {
		return
	}
	s.lastStatus = status
	cb := s.cfg.Events.SyncStatus
	s.pendingFuncs = append(s.pendingFuncs, func() { cb(status) })
}

// runPendingFuncs invokes callbacks queued while the lock was held. Must be
// called without the lock; callbacks may re-enter the session.
func (s *Session) runPendingFuncs() {
	s.mu.Lock()
	funcs := s.pendingFuncs
	s.pendingFuncs = nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}
