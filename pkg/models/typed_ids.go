package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// NoteID is the session-local identifier of a note. It is generated
// client-side at creation time and stays stable for the note's in-memory
// lifetime, independently of whether the note has been synced yet.
//
// The note's ClientKey is derived deterministically from this ID, which is
// what lets the server map "new" notes back to their remote row idempotently
// across retries.
type NoteID struct {
	uuid uuid.UUID
}

func NewNoteID() NoteID {
	return NoteID{uuid: uuid.New()}
}

func NewNoteIDFromUUID(id uuid.UUID) NoteID {
	return NoteID{uuid: id}
}

func ParseNoteID(s string) (NoteID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NoteID{}, fmt.Errorf("invalid note ID: %w", err)
	}
	return NewNoteIDFromUUID(id), nil
}

func (n NoteID) UUID() uuid.UUID { return n.uuid }
func (n NoteID) String() string  { return n.uuid.String() }
func (n NoteID) IsZero() bool    { return n.uuid == uuid.Nil }

// ClientKey returns the stable surrogate key sent to the server on every
// upsert. It is simply the canonical string form of the session-local ID.
func (n NoteID) ClientKey() string { return n.uuid.String() }

func (n NoteID) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.uuid.String())
}

func (n *NoteID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONUUID(data, &n.uuid)
}

func (n NoteID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(n.uuid.String())
}

func (n *NoteID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &n.uuid)
}

// RemoteID is the server-assigned identifier of a note. It is zero until the
// note's first successful sync; after that it is non-zero together with the
// note's version.
type RemoteID struct {
	uuid uuid.UUID
}

func NewRemoteID() RemoteID {
	return RemoteID{uuid: uuid.New()}
}

func ParseRemoteID(s string) (RemoteID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RemoteID{}, fmt.Errorf("invalid remote ID: %w", err)
	}
	return RemoteID{uuid: id}, nil
}

func (r RemoteID) UUID() uuid.UUID { return r.uuid }
func (r RemoteID) String() string  { return r.uuid.String() }
func (r RemoteID) IsZero() bool    { return r.uuid == uuid.Nil }

func (r RemoteID) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(r.uuid.String())
}

func (r *RemoteID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONUUID(data, &r.uuid)
}

func (r RemoteID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(r.uuid.String())
}

func (r *RemoteID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &r.uuid)
}

func (r RemoteID) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, nil
	}
	return r.uuid.String(), nil
}

func (r *RemoteID) Scan(value any) error {
	return scanUUID(value, &r.uuid)
}

func (RemoteID) GormDataType() string { return "uuid" }

// UserID is a typed ID for user accounts
type UserID struct {
	uuid uuid.UUID
}

func NewUserID() UserID {
	return UserID{uuid: uuid.New()}
}

func NewUserIDFromUUID(id uuid.UUID) UserID {
	return UserID{uuid: id}
}

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user ID: %w", err)
	}
	return NewUserIDFromUUID(id), nil
}

func (u UserID) UUID() uuid.UUID { return u.uuid }
func (u UserID) String() string  { return u.uuid.String() }
func (u UserID) IsZero() bool    { return u.uuid == uuid.Nil }

func (u UserID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(u.uuid.String())
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONUUID(data, &u.uuid)
}

func (u UserID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(u.uuid.String())
}

func (u *UserID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &u.uuid)
}

func (u UserID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.uuid.String(), nil
}

func (u *UserID) Scan(value any) error {
	return scanUUID(value, &u.uuid)
}

func (UserID) GormDataType() string { return "uuid" }

// GrantID is a typed ID for sharing grants
type GrantID struct {
	uuid uuid.UUID
}

func NewGrantID() GrantID {
	return GrantID{uuid: uuid.New()}
}

func ParseGrantID(s string) (GrantID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GrantID{}, fmt.Errorf("invalid grant ID: %w", err)
	}
	return GrantID{uuid: id}, nil
}

func (g GrantID) UUID() uuid.UUID { return g.uuid }
func (g GrantID) String() string  { return g.uuid.String() }
func (g GrantID) IsZero() bool    { return g.uuid == uuid.Nil }

func (g GrantID) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.uuid.String())
}

func (g *GrantID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONUUID(data, &g.uuid)
}

func (g GrantID) Value() (driver.Value, error) {
	if g.IsZero() {
		return nil, nil
	}
	return g.uuid.String(), nil
}

func (g *GrantID) Scan(value any) error {
	return scanUUID(value, &g.uuid)
}

func (GrantID) GormDataType() string { return "uuid" }

// unmarshalJSONUUID decodes a JSON string into a UUID. An empty string or
// JSON null leaves the UUID at its zero value so nullable server fields
// round-trip cleanly.
func unmarshalJSONUUID(data []byte, dst *uuid.UUID) error {
	if string(data) == "null" {
		*dst = uuid.Nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*dst = uuid.Nil
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*dst = id
	return nil
}

func unmarshalCBORUUID(data []byte, dst *uuid.UUID) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*dst = uuid.Nil
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*dst = id
	return nil
}

// scanUUID converts a database value into a UUID, handling the string,
// byte-slice and NULL representations drivers produce.
func scanUUID(value any, dst *uuid.UUID) error {
	if value == nil {
		*dst = uuid.Nil
		return nil
	}
	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("failed to parse UUID from string: %w", err)
		}
		*dst = id
	case []byte:
		id, err := uuid.Parse(string(v))
		if err != nil {
			return fmt.Errorf("failed to parse UUID from bytes: %w", err)
		}
		*dst = id
	default:
		return fmt.Errorf("unsupported type for UUID scan: %T", value)
	}
	return nil
}
