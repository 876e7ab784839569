package domain

import "time"

// Article represents a stored feed entry. ID is a stable hash derived from
// the feed URL and the entry identity, so re-ingesting the same entry always
// maps to the same row.
type Article struct {
	ID        string
	FeedID    string
	Title     string
	Link      string
	Published *time.Time
	Summary   string
	Author    string
	Tags      []string
	FetchedAt time.Time
}

// ArticleWithNotes is an article together with note-derived flags used by
// listing responses.
type ArticleWithNotes struct {
	Article
	HasNotes bool
	Starred  bool
}

// ArticlesFilter holds the predicates for article listing, combined with AND.
// Zero values mean "no filter"; Starred is tri-state via pointer.
type ArticlesFilter struct {
	FeedID  string
	Query   string
	Tag     string
	Starred *bool
}
