package board

import "github.com/noteboard/noteboard/pkg/models"

// dirtyTracker is the set of note IDs with unsynced local mutations.
//
// Each ID carries a generation counter that is bumped on every mark. The
// scheduler drains a snapshot of (id, generation) pairs, sends the batch,
// and clears an ID only if its generation is still the drained one: an edit
// made while the batch was in flight bumps the generation and keeps the note
// dirty for the next cycle. Draining never clears by itself, so a failed
// batch retries implicitly.
//
// The tracker is not safe for concurrent use on its own; the owning session
// serializes access through its mutex.
type dirtyTracker struct {
	gen map[models.NoteID]uint64
}

func newDirtyTracker() *dirtyTracker {
	return &dirtyTracker{gen: make(map[models.NoteID]uint64)}
}

// markDirty records an unsynced mutation. Idempotent in the sense that a
// note is either dirty or not; repeated marks only advance the generation.
func (t *dirtyTracker) markDirty(id models.NoteID) {
	t.gen[id]++
}

// drain returns a snapshot of the dirty set with the generation each ID had
// at drain time. The set itself is left untouched.
func (t *dirtyTracker) drain() map[models.NoteID]uint64 {
	out := make(map[models.NoteID]uint64, len(t.gen))
	for id, g := range t.gen {
		out[id] = g
	}
	return out
}

// clear removes an ID if its generation still matches the drained one,
// confirming the server accepted exactly the state that was sent.
func (t *dirtyTracker) clear(id models.NoteID, gen uint64) {
	if t.gen[id] == gen {
		delete(t.gen, id)
	}
}

// forget removes an ID unconditionally: used for conflicts and rejections,
// which are intentionally not retried, and for locally deleted notes.
func (t *dirtyTracker) forget(id models.NoteID) {
	delete(t.gen, id)
}

// contains reports whether the note has pending local mutations.
func (t *dirtyTracker) contains(id models.NoteID) bool {
	_, ok := t.gen[id]
	return ok
}

func (t *dirtyTracker) len() int {
	return len(t.gen)
}
