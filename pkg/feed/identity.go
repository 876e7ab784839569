package feed

import (
	"crypto/sha256"
	"encoding/hex"
)

// ArticleID derives a stable article identifier from the feed URL and the
// entry identity. The entry GUID wins when present, otherwise the link URL.
// The pair is joined with "|" and hashed with SHA-256, rendered as lowercase
// hex. A URL containing the delimiter could in theory collide with a
// different (feedURL, id) pair; accepted risk, pipes are rare in URLs.
func ArticleID(feedURL, entryID, linkURL string) string {
	identifier := entryID
	if identifier == "" {
		identifier = linkURL
	}
	sum := sha256.Sum256([]byte(feedURL + "|" + identifier))
	return hex.EncodeToString(sum[:])
}
