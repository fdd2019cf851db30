package board

import (
	"context"
	"sort"
	"time"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

// schedulerState is the save scheduler's state machine.
//
//	idle    -- mutation -->  pending   (timer armed)
//	pending -- mutation -->  pending   (timer reset: trailing-edge debounce)
//	pending -- timer    -->  sending   (one bulk upsert in flight)
//	sending -- mutation -->  sending   (retrigger flag set, no second flight)
//	sending -- done     -->  idle | pending (pending if retriggered or dirty)
type schedulerState int

const (
	schedIdle schedulerState = iota
	schedPending
	schedSending
)

// scheduleSaveLocked arms (or re-arms) the debounce timer. Called with the
// session lock held after every local mutation.
func (s *Session) scheduleSaveLocked() {
	if s.closed {
		return
	}
	switch s.sched {
	case schedSending:
		// A batch is in flight; remember to run another cycle when it
		// lands instead of racing a second one.
		s.retrigger = true
	case schedPending:
		s.timer.Reset(s.cfg.Debounce)
	case schedIdle:
		s.sched = schedPending
		s.timer = time.AfterFunc(s.cfg.Debounce, s.timerFired)
		s.notifyStatusLocked(SyncSaving)
	}
}

func (s *Session) timerFired() {
	s.mu.Lock()
	if s.closed || s.sched != schedPending {
		s.mu.Unlock()
		return
	}
	if s.dirty.len() == 0 {
		s.sched = schedIdle
		s.notifyStatusLocked(SyncSaved)
		s.mu.Unlock()
		s.runPendingFuncs()
		return
	}
	s.sched = schedSending
	s.retrigger = false
	batch := s.dirty.drain()
	entries := s.buildEntriesLocked(batch)
	s.mu.Unlock()

	s.sendBatch(batch, entries)
}

// Flush pushes the current dirty set immediately, bypassing the debounce
// timer, and waits for the batch to complete. Intended for teardown paths
// ("save before close"); returns the backend error, if any.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for s.sched == schedSending {
		// A background batch is mid-flight; let it finish and pick up
		// whatever it leaves dirty.
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		s.mu.Lock()
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.dirty.len() == 0 {
		s.sched = schedIdle
		s.notifyStatusLocked(SyncSaved)
		s.mu.Unlock()
		s.runPendingFuncs()
		return nil
	}
	s.sched = schedSending
	s.retrigger = false
	batch := s.dirty.drain()
	entries := s.buildEntriesLocked(batch)
	s.mu.Unlock()

	results, err := s.cfg.Backend.BulkUpsert(ctx, s.cfg.User, entries)
	s.settleBatch(batch, results, err)
	return err
}

// buildEntriesLocked snapshots the dirty notes into upsert entries. A note
// deleted between mark and drain simply produces no entry.
func (s *Session) buildEntriesLocked(batch map[models.NoteID]uint64) []store.UpsertEntry {
	entries := make([]store.UpsertEntry, 0, len(batch))
	for id := range batch {
		n, ok := s.notes[id]
		if !ok {
			continue
		}
		entries = append(entries, store.UpsertEntry{
			RemoteID:  n.RemoteID,
			ClientKey: id.ClientKey(),
			Version:   n.Version,
			Data:      *n,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ClientKey < entries[j].ClientKey
	})
	return entries
}

// sendBatch performs one background bulk upsert and settles the results.
func (s *Session) sendBatch(batch map[models.NoteID]uint64, entries []store.UpsertEntry) {
	if len(entries) == 0 {
		// Everything drained was deleted in the meantime; still clear the
		// tracker so stale IDs do not retry forever.
		s.mu.Lock()
		for id, gen := range batch {
			s.dirty.clear(id, gen)
		}
		s.finishBatchLocked(true)
		s.mu.Unlock()
		s.runPendingFuncs()
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RequestTimeout)
	results, err := s.cfg.Backend.BulkUpsert(ctx, s.cfg.User, entries)
	cancel()
	s.settleBatch(batch, results, err)
}

// finishBatchLocked leaves the sending state, rescheduling if new work
// arrived during flight or the batch left notes dirty.
func (s *Session) finishBatchLocked(success bool) {
	s.sched = schedIdle
	if s.closed {
		return
	}
	if s.retrigger || s.dirty.len() > 0 {
		s.retrigger = false
		s.sched = schedPending
		s.timer = time.AfterFunc(s.cfg.Debounce, s.timerFired)
		return
	}
	if success {
		s.notifyStatusLocked(SyncSaved)
	}
}
