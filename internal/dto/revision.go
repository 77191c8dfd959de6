package dto

import (
	"github.com/noah-isme/intra-cms-api/internal/models"
)

// RevisionResponse is the wire shape consumed by the read API. Field
// names are part of a compatibility contract and must stay byte-stable.
type RevisionResponse struct {
	ID                     string                 `json:"id"`
	Author                 string                 `json:"author"`
	Type                   string                 `json:"type"`
	StatusPublishedChanged *models.StatusChange   `json:"statusPublishedChanged"`
	ChangedFields          []string               `json:"changedFields"`
	Content                models.ContentSnapshot `json:"content"`
	OriginalContent        models.ContentSnapshot `json:"originalContent"`
	CreatedAt              string                 `json:"createdAt"`
}

// NewRevisionResponse maps a revision record onto the wire shape.
func NewRevisionResponse(rev models.Revision) RevisionResponse {
	changed := rev.ChangedFields
	if changed == nil {
		changed = models.StringList{}
	}
	return RevisionResponse{
		ID:                     rev.ID,
		Author:                 rev.AuthorID,
		Type:                   string(rev.Kind),
		StatusPublishedChanged: rev.StatusPublishedChanged,
		ChangedFields:          changed,
		Content:                rev.Content,
		OriginalContent:        rev.OriginalContent,
		CreatedAt:              rev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// RevisionQuery constrains revision listing.
type RevisionQuery struct {
	Author string `form:"author"`
	Kind   string `form:"type"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}
