package models

import "strings"

// Role represents an account's editorial capability.
type Role string

const (
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAuthor, RoleReviewer, RoleAdmin:
		return r, true
	}
	return "", false
}

// CanReview reports whether the role may approve, reject or publish posts.
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}
