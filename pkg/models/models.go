package models

import (
	"time"

	"github.com/google/uuid"
)

// PermissionMask is the bitmask describing a user's effective rights on a
// note owned by someone else. A mask is only meaningful with the read bit
// set; a mask of zero is expressed as the absence of a grant, never stored.
type PermissionMask int

const (
	PermRead    PermissionMask = 1
	PermWrite   PermissionMask = 2
	PermComment PermissionMask = 4
)

// Has reports whether every bit of p is present in m.
func (m PermissionMask) Has(p PermissionMask) bool {
	return m&p == p
}

// Valid reports whether the mask is storable as a grant: non-zero and
// including the read bit. Write or comment access without read access is
// not a representable policy.
func (m PermissionMask) Valid() bool {
	return m != 0 && m.Has(PermRead)
}

// ShareTargetType identifies the audience class of a sharing grant.
type ShareTargetType string

const (
	TargetAllUsers   ShareTargetType = "all_users"
	TargetDepartment ShareTargetType = "department"
	TargetUser       ShareTargetType = "user"
)

// NeedsTarget reports whether the target type requires a concrete target ID.
// Sharing with all users is the only audience without one.
func (t ShareTargetType) NeedsTarget() bool {
	return t == TargetDepartment || t == TargetUser
}

// Note is the core entity of the board: a freely positioned, richly
// formatted sticky note.
//
// A note exists in one of two states. A draft note has a zero RemoteID and a
// nil Version; it lives only in the creating session (and its local cache)
// until the first successful sync. A synced note has both assigned by the
// server, and Version advances server-side on every accepted write. Rather
// than modeling the two states as distinct types, the optional fields keep
// all reconciliation logic in one place.
//
// Geometry is stored relative to the viewport that was active when the note
// was last saved (ViewportWidth, ViewportHeight); hydration rescales and
// clamps it into the current viewport so notes stay visible after a resize
// or a cross-device resume.
type Note struct {
	// ID is the session-local identifier, never sent to or assigned by the
	// server. It is reconstructed from ClientKey when hydrating server rows.
	ID NoteID `gorm:"-" json:"id"`

	// RemoteID is assigned by the server on first sync; zero for drafts.
	RemoteID RemoteID `gorm:"type:uuid;primary_key" json:"remote_id"`

	// ClientKey is the deterministic surrogate key derived from ID. It is
	// sent on every upsert so retried creates map to the same server row.
	ClientKey string `gorm:"uniqueIndex;not null" json:"client_key"`

	// Version is the server-assigned monotonically increasing revision used
	// for optimistic concurrency; nil for drafts.
	Version *int64 `gorm:"column:version" json:"version"`

	// OwnerID identifies the creating user; zero means not yet attributed.
	OwnerID UserID `gorm:"type:uuid;index" json:"owner_id"`

	// Permissions is the current user's effective rights on a note owned by
	// someone else. Computed per caller when listing; never persisted.
	Permissions PermissionMask `gorm:"-" json:"permissions,omitempty"`

	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	RotationDegrees float64 `json:"rotation_degrees"`
	ColorIndex      int     `json:"color_index"`
	ZOrder          int     `json:"z_order"`

	// ViewportWidth and ViewportHeight record the viewport dimensions the
	// geometry is relative to. Zero means unknown (scale 1 on hydration).
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`

	// Content is the sanitized rich-text body. Unsanitized input is never
	// stored or transmitted.
	Content string `gorm:"type:text" json:"content"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Synced reports whether the note has completed its first sync. Outside the
// brief in-flight window of first creation, RemoteID and Version are always
// assigned together.
func (n *Note) Synced() bool {
	return !n.RemoteID.IsZero() && n.Version != nil
}

// OwnedBy reports whether the note belongs to the given user. Draft notes
// with no attributed owner count as owned by the session that created them.
func (n *Note) OwnedBy(user UserID) bool {
	return n.OwnerID.IsZero() || n.OwnerID == user
}

// ShareGrant binds a synced note to a target audience and a permission
// bitmask. At most one grant row exists per (note, target type, target)
// tuple, and sharing is modeled as a single active policy per note: applying
// a new mode first revokes every existing grant for the note, then creates
// at most one new grant.
type ShareGrant struct {
	ID           GrantID         `gorm:"type:uuid;primary_key" json:"id"`
	NoteRemoteID RemoteID        `gorm:"type:uuid;not null;index" json:"note_remote_id"`
	TargetType   ShareTargetType `gorm:"not null" json:"target_type"`
	TargetID     *uuid.UUID      `gorm:"type:uuid" json:"target_id,omitempty"`
	Permissions  PermissionMask  `gorm:"not null" json:"permissions"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AppliesTo reports whether the grant covers the given user, who is assumed
// to belong to the given departments.
func (g *ShareGrant) AppliesTo(user UserID, departments []uuid.UUID) bool {
	switch g.TargetType {
	case TargetAllUsers:
		return true
	case TargetUser:
		return g.TargetID != nil && *g.TargetID == user.UUID()
	case TargetDepartment:
		if g.TargetID == nil {
			return false
		}
		for _, d := range departments {
			if d == *g.TargetID {
				return true
			}
		}
	}
	return false
}

// ShareTargetKind distinguishes rows of the sharable-target directory.
type ShareTargetKind string

const (
	ShareTargetUser       ShareTargetKind = "user"
	ShareTargetDepartment ShareTargetKind = "department"
)

// ShareTarget is a row of the directory of audiences a note can be shared
// with: individual users and departments. The engine only reads this
// directory; maintaining it belongs to the surrounding user administration.
type ShareTarget struct {
	ID   uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Kind ShareTargetKind `gorm:"not null" json:"kind"`
	Name string          `gorm:"not null" json:"name"`
}
