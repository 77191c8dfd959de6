package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LifecycleState classifies a content item's publication lifecycle.
type LifecycleState string

const (
	StateDraft     LifecycleState = "DRAFT"
	StatePublished LifecycleState = "PUBLISHED"
	StateArchived  LifecycleState = "ARCHIVED"
	StateDeleted   LifecycleState = "DELETED"
)

// StatusChange names the lifecycle transition recorded on a revision.
type StatusChange string

const (
	StatusChangePublished StatusChange = "published"
	StatusChangeArchived  StatusChange = "archived"
	StatusChangeDeleted   StatusChange = "deleted"
)

// ContentItem carries the fields the access-control and revision core
// reads and writes. Subtype-specific payload stays behind ContentPayload.
type ContentItem struct {
	ID                string          `db:"id" json:"id"`
	OwnerID           string          `db:"owner_id" json:"owner_id"`
	GroupID           *string         `db:"group_id" json:"group_id,omitempty"`
	Title             string          `db:"title" json:"title"`
	ReadAccess        AccessList      `db:"read_access" json:"read_access"`
	WriteAccess       AccessList      `db:"write_access" json:"write_access"`
	Tags              json.RawMessage `db:"tags" json:"tags,omitempty"`
	Fields            json.RawMessage `db:"fields" json:"fields"`
	PublishedAt       *time.Time      `db:"published_at" json:"published_at,omitempty"`
	Archived          bool            `db:"archived" json:"archived"`
	SchedulePublishAt *time.Time      `db:"schedule_publish_at" json:"schedule_publish_at,omitempty"`
	ScheduleArchiveAt *time.Time      `db:"schedule_archive_at" json:"schedule_archive_at,omitempty"`
	ScheduleDeleteAt  *time.Time      `db:"schedule_delete_at" json:"schedule_delete_at,omitempty"`
	DeletedAt         *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Lifecycle derives the item's lifecycle state from its timestamp fields.
func (c *ContentItem) Lifecycle() LifecycleState {
	switch {
	case c.DeletedAt != nil:
		return StateDeleted
	case c.Archived:
		return StateArchived
	case c.PublishedAt != nil:
		return StatePublished
	}
	return StateDraft
}

// ClassifyTransition maps a before/after lifecycle state pair to the
// status change recorded on the revision, or nil when the state did not
// change or the transition carries no publication meaning.
func ClassifyTransition(before, after LifecycleState) *StatusChange {
	if before == after {
		return nil
	}
	var change StatusChange
	switch after {
	case StatePublished:
		change = StatusChangePublished
	case StateArchived:
		change = StatusChangeArchived
	case StateDeleted:
		change = StatusChangeDeleted
	default:
		// Back to draft (unpublish) has no published-status marker.
		return nil
	}
	return &change
}

// Snapshot flattens the item into the field map the revision engine
// diffs: every key of the subtype payload verbatim, plus the named
// lifecycle and metadata fields the core owns.
func (c *ContentItem) Snapshot() (ContentSnapshot, error) {
	snap := ContentSnapshot{}
	if len(c.Fields) > 0 {
		if err := json.Unmarshal(c.Fields, &snap); err != nil {
			return nil, err
		}
	}
	title, err := json.Marshal(c.Title)
	if err != nil {
		return nil, err
	}
	snap["title"] = title
	if len(c.Tags) > 0 {
		snap["tags"] = append(json.RawMessage(nil), c.Tags...)
	}
	published, err := json.Marshal(c.PublishedAt)
	if err != nil {
		return nil, err
	}
	snap["publishedAt"] = published
	archived, err := json.Marshal(c.Archived)
	if err != nil {
		return nil, err
	}
	snap["archived"] = archived
	return snap, nil
}

// ContentSnapshot is a flat field-name to serialized-value map. Values are
// kept as raw JSON so equality is exact byte comparison, never semantic.
type ContentSnapshot map[string]json.RawMessage

// Value stores the snapshot as a JSON object.
func (s ContentSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan loads the snapshot from its stored JSON object form.
func (s *ContentSnapshot) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = ContentSnapshot{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported snapshot source type %T", src)
	}
	out := ContentSnapshot{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	*s = out
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s ContentSnapshot) Clone() ContentSnapshot {
	if s == nil {
		return nil
	}
	out := make(ContentSnapshot, len(s))
	for k, v := range s {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// ContentPayload is the contract every content subtype satisfies toward
// the revision engine: a flat snapshot plus the set of field names the
// engine tracks for diffing.
type ContentPayload interface {
	Serialize() (ContentSnapshot, error)
	TrackedFields() []string
}

// ContentFilter constrains content listing queries.
type ContentFilter struct {
	OwnerID string
	GroupID string
	State   LifecycleState
	Limit   int
	Offset  int
}
