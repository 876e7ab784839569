package domain

import "time"

// Feed represents a registered RSS/Atom feed source
type Feed struct {
	ID            string
	URL           string
	Title         string
	CreatedAt     time.Time
	LastFetchedAt *time.Time
	LastError     string
}
