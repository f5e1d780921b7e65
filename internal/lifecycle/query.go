package lifecycle

import (
	"sort"
	"strings"

	"gator-press/internal/models"
)

// SortPosts orders posts in place. Stores return creation order, which is
// what SortDefault keeps. Ties fall back to creation order, reversed for
// SortNewest.
func SortPosts(posts []*models.Post, key models.SortKey) {
	var less func(a, b *models.Post) bool
	switch key {
	case models.SortNewest:
		for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
			posts[i], posts[j] = posts[j], posts[i]
		}
		less = func(a, b *models.Post) bool { return a.CreatedAt.After(b.CreatedAt) }
	case models.SortOldest:
		less = func(a, b *models.Post) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case models.SortTitle:
		less = func(a, b *models.Post) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case models.SortAuthor:
		less = func(a, b *models.Post) bool { return strings.ToLower(authorOf(a)) < strings.ToLower(authorOf(b)) }
	default:
		return
	}
	sort.SliceStable(posts, func(i, j int) bool { return less(posts[i], posts[j]) })
}

func authorOf(p *models.Post) string {
	if strings.TrimSpace(p.Author) == "" {
		return "Anonymous"
	}
	return p.Author
}
