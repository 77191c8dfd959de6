package models

import "time"

// RevisionKind classifies what a revision recorded.
type RevisionKind string

const (
	RevisionCreate RevisionKind = "create"
	RevisionUpdate RevisionKind = "update"
	RevisionDelete RevisionKind = "delete"
)

// Revision is the immutable audit record of one content mutation. Rows
// are created once and never updated; ordering by created_at defines the
// item's history. Revisions are removed only when their container is
// permanently purged.
type Revision struct {
	ID                     string          `db:"id" json:"id"`
	ContainerID            string          `db:"container_id" json:"containerId"`
	AuthorID               string          `db:"author_id" json:"author"`
	Kind                   RevisionKind    `db:"kind" json:"type"`
	Content                ContentSnapshot `db:"content" json:"content"`
	OriginalContent        ContentSnapshot `db:"original_content" json:"originalContent"`
	ChangedFields          StringList      `db:"changed_fields" json:"changedFields"`
	StatusPublishedChanged *StatusChange   `db:"status_published_changed" json:"statusPublishedChanged"`
	CreatedAt              time.Time       `db:"created_at" json:"createdAt"`
}

// RevisionFilter constrains revision listing queries.
type RevisionFilter struct {
	ContainerID string
	AuthorID    string
	Kind        RevisionKind
	Limit       int
	Offset      int
}
