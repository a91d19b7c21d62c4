// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"encoding/json"
	"time"
)

// ActionKind enumerates the auditable actions.
type ActionKind string

const (
	ActionLogin       ActionKind = "login"
	ActionLogout      ActionKind = "logout"
	ActionView        ActionKind = "view"
	ActionCreate      ActionKind = "create"
	ActionModify      ActionKind = "modify"
	ActionDelete      ActionKind = "delete"
	ActionDownload    ActionKind = "download"
	ActionUpload      ActionKind = "upload"
	ActionRestore     ActionKind = "restore"
	ActionManageUsers ActionKind = "manage-users"
)

// ParseActionKind maps an action name to its ActionKind value.
func ParseActionKind(name string) (ActionKind, bool) {
	switch ActionKind(name) {
	case ActionLogin, ActionLogout, ActionView, ActionCreate, ActionModify,
		ActionDelete, ActionDownload, ActionUpload, ActionRestore, ActionManageUsers:
		return ActionKind(name), true
	}
	return "", false
}

// Snapshot is a schema-less point-in-time copy of an entity's field values,
// serialized to JSON on the activity log entry. It is an opaque blob with a
// defined serialization contract, not a typed column.
type Snapshot map[string]any

// MarshalText serializes the snapshot to its canonical JSON form.
// A nil snapshot serializes to an empty string (stored as NULL).
func (s Snapshot) MarshalText() (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalSnapshot parses the stored JSON form back into a Snapshot.
// An empty string yields a nil snapshot.
func UnmarshalSnapshot(text string) (Snapshot, error) {
	if text == "" {
		return nil, nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, err
	}
	return s, nil
}

// ActivityLogEntry is one append-only record of a state-changing action (or
// a login/logout/view/download event the caller chose to record). Entries
// are never updated or deleted by normal operation; corrections are made by
// writing new entries. User and document references are cleared, not
// rejected, when the referenced row is removed, so the log stays complete.
type ActivityLogEntry struct {
	// ID is the unique identifier for the entry.
	ID int64 `json:"id"`

	// UserID is the acting user, if known.
	UserID *int64 `json:"user_id,omitempty"`

	// DocumentID is the affected document, if any.
	DocumentID *int64 `json:"document_id,omitempty"`

	// Action is the kind of action recorded.
	Action ActionKind `json:"action"`

	// Description is free text describing the action.
	Description string `json:"description"`

	// RemoteAddr is the network origin of the request.
	RemoteAddr string `json:"remote_addr"`

	// UserAgent is the client identifier of the request.
	UserAgent string `json:"user_agent"`

	// Before is the JSON snapshot of the entity before the action.
	Before Snapshot `json:"before,omitempty"`

	// After is the JSON snapshot of the entity after the action.
	After Snapshot `json:"after,omitempty"`

	// CreatedAt is the timestamp when the entry was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// NewActivityLogEntry creates a new entry stamped with the current time.
func NewActivityLogEntry(action ActionKind, description string) *ActivityLogEntry {
	return &ActivityLogEntry{
		Action:      action,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}
