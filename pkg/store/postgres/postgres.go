// Package postgres provides the PostgreSQL implementation of the
// [github.com/noteboard/noteboard/pkg/store.Backend] interface using GORM.
//
// It is the production backend: the schema maps [models.Note],
// [models.ShareGrant], and [models.ShareTarget] directly to tables, with an
// additional department membership table owned by this package. Optimistic
// concurrency runs inside a transaction per bulk upsert, using a row lock on
// the target note so two concurrent writers serialize and exactly one of
// them observes a version mismatch.
//
// The semantics are identical to the in-memory store in
// [github.com/noteboard/noteboard/pkg/store/memory]; tests assert the
// protocol against the in-memory store and this package only adds the SQL
// mapping.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

// departmentMember records that a user belongs to a department. Maintained
// by user administration; this package only reads it when resolving
// department-targeted grants.
type departmentMember struct {
	UserID       models.UserID `gorm:"type:uuid;primaryKey"`
	DepartmentID uuid.UUID     `gorm:"type:uuid;primaryKey"`
}

// Store implements store.Backend using PostgreSQL with GORM.
// A production system would add connection pool configuration, query
// metrics, and retry logic for transient failures.
type Store struct {
	db *gorm.DB
}

var _ store.Backend = (*Store)(nil)

// New creates a new PostgreSQL store.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the schema using GORM's AutoMigrate. Safe to
// run repeatedly; it only adds missing schema elements and never drops data.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Note{},
		&models.ShareGrant{},
		&models.ShareTarget{},
		&departmentMember{},
	)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddShareTarget seeds a row of the sharable-target directory.
func (s *Store) AddShareTarget(ctx context.Context, t models.ShareTarget) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error
}

// SetDepartments replaces the departments a user belongs to.
func (s *Store) SetDepartments(ctx context.Context, user models.UserID, departments ...uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user).Delete(&departmentMember{}).Error; err != nil {
			return err
		}
		for _, d := range departments {
			if err := tx.Create(&departmentMember{UserID: user, DepartmentID: d}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// List implements store.Backend: the caller's own notes plus notes shared in
// to them, ordered by creation time for stable snapshots.
func (s *Store) List(ctx context.Context, auth models.UserID) ([]models.Note, error) {
	db := s.db.WithContext(ctx)

	var own []models.Note
	if err := db.Where("owner_id = ?", auth).Find(&own).Error; err != nil {
		return nil, err
	}

	departments, err := s.departmentsOf(ctx, auth)
	if err != nil {
		return nil, err
	}

	var grants []models.ShareGrant
	if err := db.Find(&grants).Error; err != nil {
		return nil, err
	}
	maskByNote := make(map[models.RemoteID]models.PermissionMask)
	for i := range grants {
		g := grants[i]
		if _, seen := maskByNote[g.NoteRemoteID]; seen {
			continue
		}
		if g.AppliesTo(auth, departments) {
			maskByNote[g.NoteRemoteID] = g.Permissions
		}
	}

	out := make([]models.Note, 0, len(own)+len(maskByNote))
	for _, n := range own {
		out = append(out, snapshot(n, 0))
	}
	if len(maskByNote) > 0 {
		ids := make([]models.RemoteID, 0, len(maskByNote))
		for id := range maskByNote {
			ids = append(ids, id)
		}
		var shared []models.Note
		if err := db.Where("remote_id IN ?", ids).Where("owner_id <> ?", auth).Find(&shared).Error; err != nil {
			return nil, err
		}
		for _, n := range shared {
			out = append(out, snapshot(n, maskByNote[n.RemoteID]))
		}
	}

	sortNotes(out)
	return out, nil
}

// BulkUpsert implements store.Backend. The whole batch runs in one
// transaction; per-entry outcomes never abort it, so a conflict on one note
// cannot roll back the accepted writes next to it.
func (s *Store) BulkUpsert(ctx context.Context, auth models.UserID, entries []store.UpsertEntry) ([]store.UpsertResult, error) {
	results := make([]store.UpsertResult, 0, len(entries))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			res, err := s.applyEntry(tx, auth, e)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) applyEntry(tx *gorm.DB, auth models.UserID, e store.UpsertEntry) (store.UpsertResult, error) {
	if e.ClientKey == "" {
		return rejected(e.ClientKey, "missing client key"), nil
	}

	if e.RemoteID.IsZero() {
		// Creation path: a retried create finds the earlier attempt's row
		// by client key and is acknowledged without a duplicate insert.
		var existing models.Note
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("client_key = ?", e.ClientKey).First(&existing).Error
		if err == nil {
			return accepted(e.ClientKey, existing.RemoteID, *existing.Version), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return store.UpsertResult{}, err
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
		if err := tx.Create(&row).Error; err != nil {
			return store.UpsertResult{}, err
		}
		return accepted(e.ClientKey, row.RemoteID, v), nil
	}

	var row models.Note
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("remote_id = ?", e.RemoteID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rejected(e.ClientKey, "note not found"), nil
	}
	if err != nil {
		return store.UpsertResult{}, err
	}

	if row.OwnerID != auth {
		mask, err := s.effectiveMask(tx, e.RemoteID, auth)
		if err != nil {
			return store.UpsertResult{}, err
		}
		if !mask.Has(models.PermWrite) {
			return rejected(e.ClientKey, "permission denied"), nil
		}
	}
	if e.Version == nil || row.Version == nil || *e.Version != *row.Version {
		return store.UpsertResult{ClientKey: e.ClientKey, Status: store.StatusConflict}, nil
	}

	newVersion := *row.Version + 1
	updates := map[string]any{
		"x":                e.Data.X,
		"y":                e.Data.Y,
		"width":            e.Data.Width,
		"height":           e.Data.Height,
		"rotation_degrees": e.Data.RotationDegrees,
		"color_index":      e.Data.ColorIndex,
		"z_order":          e.Data.ZOrder,
		"viewport_width":   e.Data.ViewportWidth,
		"viewport_height":  e.Data.ViewportHeight,
		"content":          e.Data.Content,
		"version":          newVersion,
		"updated_at":       time.Now(),
	}
	if err := tx.Model(&models.Note{}).Where("remote_id = ?", row.RemoteID).Updates(updates).Error; err != nil {
		return store.UpsertResult{}, err
	}
	return accepted(e.ClientKey, row.RemoteID, newVersion), nil
}

// Delete implements store.Backend. Owner only.
func (s *Store) Delete(ctx context.Context, auth models.UserID, id models.RemoteID) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Note
		err := tx.Where("remote_id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if row.OwnerID != auth {
			return store.ErrPermissionDenied
		}
		if err := tx.Where("note_remote_id = ?", id).Delete(&models.ShareGrant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("remote_id = ?", id).Delete(&models.Note{}).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// ClearAll implements store.Backend: deletes only the caller's own notes.
func (s *Store) ClearAll(ctx context.Context, auth models.UserID) (int, error) {
	cleared := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []models.RemoteID
		if err := tx.Model(&models.Note{}).Where("owner_id = ?", auth).Pluck("remote_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("note_remote_id IN ?", ids).Delete(&models.ShareGrant{}).Error; err != nil {
			return err
		}
		res := tx.Where("remote_id IN ?", ids).Delete(&models.Note{})
		if res.Error != nil {
			return res.Error
		}
		cleared = int(res.RowsAffected)
		return nil
	})
	return cleared, err
}

// ShareGrant implements store.Backend: revoke-then-grant, single active
// policy per note.
func (s *Store) ShareGrant(ctx context.Context, auth models.UserID, grant models.ShareGrant) (models.ShareGrant, error) {
	if !grant.Permissions.Valid() {
		return models.ShareGrant{}, fmt.Errorf("invalid permission mask %d: grants must include read access", grant.Permissions)
	}
	if grant.TargetType.NeedsTarget() && grant.TargetID == nil {
		return models.ShareGrant{}, fmt.Errorf("target type %q requires a target", grant.TargetType)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireOwner(tx, grant.NoteRemoteID, auth); err != nil {
			return err
		}
		if err := tx.Where("note_remote_id = ?", grant.NoteRemoteID).Delete(&models.ShareGrant{}).Error; err != nil {
			return err
		}
		grant.ID = models.NewGrantID()
		grant.CreatedAt = time.Now()
		return tx.Create(&grant).Error
	})
	if err != nil {
		return models.ShareGrant{}, err
	}
	return grant, nil
}

// ShareRevoke implements store.Backend.
func (s *Store) ShareRevoke(ctx context.Context, auth models.UserID, noteID models.RemoteID, targetType models.ShareTargetType, targetID *uuid.UUID) (bool, error) {
	revoked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireOwner(tx, noteID, auth); err != nil {
			return err
		}
		q := tx.Where("note_remote_id = ? AND target_type = ?", noteID, targetType)
		if targetID == nil {
			q = q.Where("target_id IS NULL")
		} else {
			q = q.Where("target_id = ?", *targetID)
		}
		res := q.Delete(&models.ShareGrant{})
		if res.Error != nil {
			return res.Error
		}
		revoked = res.RowsAffected > 0
		return nil
	})
	return revoked, err
}

// ShareList implements store.Backend. Owner only.
func (s *Store) ShareList(ctx context.Context, auth models.UserID, noteID models.RemoteID) ([]models.ShareGrant, error) {
	var grants []models.ShareGrant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireOwner(tx, noteID, auth); err != nil {
			return err
		}
		return tx.Where("note_remote_id = ?", noteID).Find(&grants).Error
	})
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// ListShareTargets implements store.Backend.
func (s *Store) ListShareTargets(ctx context.Context, auth models.UserID) ([]models.ShareTarget, error) {
	var targets []models.ShareTarget
	err := s.db.WithContext(ctx).Order("name").Find(&targets).Error
	return targets, err
}

func (s *Store) requireOwner(tx *gorm.DB, noteID models.RemoteID, auth models.UserID) error {
	var row models.Note
	err := tx.Where("remote_id = ?", noteID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if row.OwnerID != auth {
		return store.ErrPermissionDenied
	}
	return nil
}

func (s *Store) departmentsOf(ctx context.Context, user models.UserID) ([]uuid.UUID, error) {
	var departments []uuid.UUID
	err := s.db.WithContext(ctx).Model(&departmentMember{}).
		Where("user_id = ?", user).Pluck("department_id", &departments).Error
	return departments, err
}

func (s *Store) effectiveMask(tx *gorm.DB, noteID models.RemoteID, auth models.UserID) (models.PermissionMask, error) {
	var departments []uuid.UUID
	if err := tx.Model(&departmentMember{}).Where("user_id = ?", auth).Pluck("department_id", &departments).Error; err != nil {
		return 0, err
	}
	var grants []models.ShareGrant
	if err := tx.Where("note_remote_id = ?", noteID).Find(&grants).Error; err != nil {
		return 0, err
	}
	for i := range grants {
		if grants[i].AppliesTo(auth, departments) {
			return grants[i].Permissions, nil
		}
	}
	return 0, nil
}

func accepted(key string, id models.RemoteID, version int64) store.UpsertResult {
	v := version
	return store.UpsertResult{ClientKey: key, Status: store.StatusOK, RemoteID: id, Version: &v}
}

func rejected(key, reason string) store.UpsertResult {
	return store.UpsertResult{ClientKey: key, Status: store.StatusRejected, Reason: reason}
}

func snapshot(n models.Note, mask models.PermissionMask) models.Note {
	n.Permissions = mask
	if id, err := models.ParseNoteID(n.ClientKey); err == nil {
		n.ID = id
	}
	return n
}

func sortNotes(notes []models.Note) {
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ClientKey < notes[j].ClientKey
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
}
