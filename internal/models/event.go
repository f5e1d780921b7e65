package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventPostCreated   EventType = "post.created"
	EventPostEdited    EventType = "post.edited"
	EventPostSubmitted EventType = "post.submitted"
	EventPostPublished EventType = "post.published"
	EventPostRejected  EventType = "post.rejected"
	EventPostDeleted   EventType = "post.deleted"
	EventCommentAdded  EventType = "comment.added"
	EventFeedbackAdded EventType = "feedback.added"
)

// LifecycleEvent is pushed to connected clients after a successful mutation.
type LifecycleEvent struct {
	Type      EventType  `json:"type"`
	PostID    uuid.UUID  `json:"postId"`
	Title     string     `json:"title,omitempty"`
	Status    PostStatus `json:"status,omitempty"`
	Actor     string     `json:"actor"`
	CreatedBy uuid.UUID  `json:"-"`
	At        time.Time  `json:"at"`
}
