package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noteboard/noteboard/pkg/models"
)

// ShareTargets returns the directory of audiences notes can be shared with.
// The directory changes rarely, so it is fetched once per session and served
// from cache afterwards; pass force to bypass the cache.
func (s *Session) ShareTargets(ctx context.Context, force bool) ([]models.ShareTarget, error) {
	s.mu.Lock()
	if !force && s.targetCache != nil {
		cached := make([]models.ShareTarget, len(s.targetCache))
		copy(cached, s.targetCache)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	targets, err := s.cfg.Backend.ListShareTargets(ctx, s.cfg.User)
	if err != nil {
		return nil, fmt.Errorf("failed to list share targets: %w", err)
	}

	s.mu.Lock()
	s.targetCache = targets
	s.mu.Unlock()

	out := make([]models.ShareTarget, len(targets))
	copy(out, targets)
	return out, nil
}

// Grants returns the note's current sharing grants, from cache when the
// session has fetched them before. Only meaningful for notes the session
// user owns; the server enforces that.
func (s *Session) Grants(ctx context.Context, id models.NoteID) ([]models.ShareGrant, error) {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok || n.RemoteID.IsZero() {
		s.mu.Unlock()
		// A draft has no server row and therefore no grants.
		return nil, nil
	}
	remoteID := n.RemoteID
	if cached, hit := s.grantCache[remoteID]; hit {
		out := make([]models.ShareGrant, len(cached))
		copy(out, cached)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	grants, err := s.cfg.Backend.ShareList(ctx, s.cfg.User, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	s.mu.Lock()
	s.grantCache[remoteID] = grants
	s.mu.Unlock()

	out := make([]models.ShareGrant, len(grants))
	copy(out, grants)
	return out, nil
}

// SetSharing replaces the note's sharing policy.
//
// A nil target type makes the note private: every grant is revoked and no
// new one is created. Otherwise a single grant for (targetType, targetID,
// mask) replaces whatever was there. Validation failures (a mode that needs
// a target but got none, a mask without the read bit) return ErrValidation
// before any network call. The ownership check here is advisory and returns
// ErrPermissionDenied early; the server repeats it authoritatively.
func (s *Session) SetSharing(ctx context.Context, id models.NoteID, targetType *models.ShareTargetType, targetID *uuid.UUID, mask models.PermissionMask) error {
	if targetType != nil {
		switch *targetType {
		case models.TargetAllUsers, models.TargetDepartment, models.TargetUser:
		default:
			return fmt.Errorf("%w: unknown share target type %q", ErrValidation, *targetType)
		}
		if targetType.NeedsTarget() && targetID == nil {
			return fmt.Errorf("%w: share target type %q requires a target", ErrValidation, *targetType)
		}
		if !mask.Valid() {
			return fmt.Errorf("%w: permission mask must include read access", ErrValidation)
		}
	}

	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: note does not exist", ErrValidation)
	}
	if !n.OwnedBy(s.cfg.User) {
		s.mu.Unlock()
		return fmt.Errorf("%w: only the owner can change sharing", ErrPermissionDenied)
	}
	if n.RemoteID.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("%w: note has not synced yet", ErrValidation)
	}
	remoteID := n.RemoteID
	s.mu.Unlock()

	if targetType == nil {
		if err := s.revokeAll(ctx, remoteID); err != nil {
			return err
		}
		s.mu.Lock()
		s.grantCache[remoteID] = nil
		s.mu.Unlock()
		return nil
	}

	grant, err := s.cfg.Backend.ShareGrant(ctx, s.cfg.User, models.ShareGrant{
		NoteRemoteID: remoteID,
		TargetType:   *targetType,
		TargetID:     targetID,
		Permissions:  mask,
	})
	if err != nil {
		return fmt.Errorf("failed to update sharing: %w", err)
	}

	s.mu.Lock()
	s.grantCache[remoteID] = []models.ShareGrant{grant}
	s.mu.Unlock()
	return nil
}

// revokeAll removes every current grant on the note one by one. The grant
// list is fetched fresh so revocation matches what the server holds, not
// what the cache remembers.
func (s *Session) revokeAll(ctx context.Context, remoteID models.RemoteID) error {
	grants, err := s.cfg.Backend.ShareList(ctx, s.cfg.User, remoteID)
	if err != nil {
		return fmt.Errorf("failed to list grants for revocation: %w", err)
	}
	for _, g := range grants {
		if _, err := s.cfg.Backend.ShareRevoke(ctx, s.cfg.User, remoteID, g.TargetType, g.TargetID); err != nil {
			return fmt.Errorf("failed to revoke grant: %w", err)
		}
	}
	return nil
}
