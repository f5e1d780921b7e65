package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Post struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Content   string     `json:"content" db:"content"`
	Author    string     `json:"author" db:"author"`
	CreatedBy uuid.UUID  `json:"createdBy" db:"created_by"`
	Status    PostStatus `json:"status" db:"status"`
	Likes     int        `json:"likes" db:"likes"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// Clone returns a copy that callers may hand out without sharing state.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// PostFilter narrows a post listing. Zero values match everything.
type PostFilter struct {
	Status  PostStatus
	Author  string
	Keyword string
}

// PostQuery is a PostFilter plus an optional ordering.
type PostQuery struct {
	PostFilter
	Sort SortKey
}

// SortKey names an ordering for post listings.
type SortKey string

const (
	SortDefault SortKey = ""
	SortNewest  SortKey = "newest"
	SortOldest  SortKey = "oldest"
	SortTitle   SortKey = "title"
	SortAuthor  SortKey = "author"
)

// ParseSortKey accepts the listing sort names; anything else is rejected.
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(s); k {
	case SortDefault, SortNewest, SortOldest, SortTitle, SortAuthor:
		return k, true
	}
	return SortDefault, false
}

// Matches applies the filter to a single post.
func (f PostFilter) Matches(p *Post) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Author != "" && !strings.EqualFold(strings.TrimSpace(p.Author), strings.TrimSpace(f.Author)) {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Keyword)) {
		return false
	}
	return true
}
