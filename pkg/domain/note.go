package domain

import "time"

// Note is a user-authored annotation attached to exactly one article.
// At most one note exists per article; upsert keeps that invariant.
type Note struct {
	ID        string
	ArticleID string
	Body      string
	Tags      []string
	Starred   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
