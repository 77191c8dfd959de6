package dto

import (
	"encoding/json"
	"time"
)

// CreateContentRequest carries a new content item.
type CreateContentRequest struct {
	Title         string          `json:"title" binding:"required"`
	GroupID       *string         `json:"groupId,omitempty"`
	Fields        json.RawMessage `json:"fields,omitempty"`
	Tags          json.RawMessage `json:"tags,omitempty"`
	ReadAccessID  string          `json:"readAccessId,omitempty"`
	WriteAccessID string          `json:"writeAccessId,omitempty"`
	Publish       bool            `json:"publish,omitempty"`
}

// UpdateContentRequest carries proposed field changes. Nil pointers leave
// the corresponding field untouched.
type UpdateContentRequest struct {
	Title             *string         `json:"title,omitempty"`
	Fields            json.RawMessage `json:"fields,omitempty"`
	Tags              json.RawMessage `json:"tags,omitempty"`
	Publish           *bool           `json:"publish,omitempty"`
	Archive           *bool           `json:"archive,omitempty"`
	SchedulePublishAt *time.Time      `json:"schedulePublishAt,omitempty"`
	ScheduleArchiveAt *time.Time      `json:"scheduleArchiveAt,omitempty"`
	ScheduleDeleteAt  *time.Time      `json:"scheduleDeleteAt,omitempty"`
}

// SetAccessRequest applies access-level selectors to an item.
type SetAccessRequest struct {
	ReadAccessID  string `json:"readAccessId" binding:"required"`
	WriteAccessID string `json:"writeAccessId,omitempty"`
}

// ContentQuery constrains content listing.
type ContentQuery struct {
	GroupID string `form:"groupId"`
	OwnerID string `form:"ownerId"`
	State   string `form:"state"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}
