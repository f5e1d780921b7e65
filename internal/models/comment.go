package models

import (
	"time"

	"github.com/google/uuid"
)

// NoteChannel separates reader comments from editorial feedback.
type NoteChannel string

const (
	ChannelComment  NoteChannel = "comment"
	ChannelFeedback NoteChannel = "feedback"
)

// Note is an append-only comment or feedback entry attached to a post.
type Note struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	PostID    uuid.UUID   `json:"postId" db:"post_id"`
	Channel   NoteChannel `json:"channel" db:"channel"`
	Text      string      `json:"text" db:"text"`
	AuthorID  string      `json:"authorId" db:"author_id"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}
