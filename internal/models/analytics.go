package models

import "time"

// Analytics is the dashboard view of the post collection.
type Analytics struct {
	TotalPublished int       `json:"totalPosts" db:"total_published" bson:"totalpublished"`
	TotalDrafts    int       `json:"totalDrafts" db:"total_drafts" bson:"totaldrafts"`
	TotalInReview  int       `json:"totalReviews" db:"total_in_review" bson:"totalinreview"`
	TotalRejected  int       `json:"totalRejected" db:"total_rejected" bson:"totalrejected"`
	RejectedToday  int       `json:"rejectedToday" db:"rejected_today" bson:"rejectedtoday"`
	GeneratedAt    time.Time `json:"generatedAt" db:"generated_at" bson:"generatedat"`
}
