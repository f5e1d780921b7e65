package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostStatus is the persisted lifecycle state of a post.
type PostStatus string

const (
	StatusDraft     PostStatus = "DRAFT"
	StatusReview    PostStatus = "REVIEW"
	StatusPublished PostStatus = "PUBLISHED"
)

// LiveStatuses lists every status a stored post can have.
var LiveStatuses = []PostStatus{StatusDraft, StatusReview, StatusPublished}

func (s PostStatus) String() string { return string(s) }

func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusPublished:
		return true
	}
	return false
}

// ParsePostStatus is case-insensitive and also accepts the legacy "REVIEWED" spelling.
func ParsePostStatus(s string) (PostStatus, bool) {
	st := PostStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st == "REVIEWED" {
		st = StatusReview
	}
	return st, st.Valid()
}

// StatusChange is one entry of a post's status history.
type StatusChange struct {
	PostID    uuid.UUID  `json:"postId" db:"post_id" bson:"postid"`
	OldStatus PostStatus `json:"oldStatus" db:"old_status" bson:"oldstatus"`
	NewStatus PostStatus `json:"newStatus" db:"new_status" bson:"newstatus"`
	ChangedBy string     `json:"changedBy" db:"changed_by" bson:"changedby"`
	At        time.Time  `json:"at" db:"changed_at" bson:"at"`
}
