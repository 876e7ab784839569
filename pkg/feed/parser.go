package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/memofee/memofee/pkg/domain"
)

// placeholderTitle is used for entries that carry no title of their own
const placeholderTitle = "No Title"

// Parser fetches RSS/Atom feeds over HTTP and converts entries to article
// drafts. Drafts carry a derived stable ID but no feed ID; the caller binds
// them to a feed record.
type Parser struct {
	client    *http.Client
	userAgent string
	sanitizer *bluemonday.Policy
}

// NewParser creates a feed parser with the given fetch timeout
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Parse retrieves the feed at url and converts it to a title and a list of
// article drafts. Retrieval failures come back as *domain.FetchError,
// malformed feed content as *domain.ParseError. Entries without a link are
// skipped, not fatal.
func (p *Parser) Parse(ctx context.Context, url string) (title string, drafts []domain.Article, err error) {
	body, err := p.fetch(ctx, url)
	if err != nil {
		return "", nil, &domain.FetchError{URL: url, Err: err}
	}
	defer body.Close()

	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return "", nil, &domain.ParseError{URL: url, Err: err}
	}

	now := time.Now()
	drafts = make([]domain.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			lgr.Printf("[WARN] skipping entry without link in %s (guid: %q)", url, item.GUID)
			continue
		}
		drafts = append(drafts, p.makeDraft(url, item, now))
	}

	return parsed.Title, drafts, nil
}

// makeDraft maps a single feed entry to an article draft
func (p *Parser) makeDraft(feedURL string, item *gofeed.Item, now time.Time) domain.Article {
	draft := domain.Article{
		ID:        ArticleID(feedURL, item.GUID, item.Link),
		Title:     item.Title,
		Link:      item.Link,
		Summary:   p.summary(item),
		Author:    author(item),
		Tags:      item.Categories,
		FetchedAt: now,
	}
	if draft.Title == "" {
		draft.Title = placeholderTitle
	}
	if draft.Tags == nil {
		draft.Tags = []string{}
	}

	// some formats report an "unset" date as the minimum representable
	// time, treat it the same as a missing date
	if item.PublishedParsed != nil && !item.PublishedParsed.IsZero() {
		t := *item.PublishedParsed
		draft.Published = &t
	}

	return draft
}

// summary returns the entry description, falling back to the full content
// body. Summaries come from untrusted remotes, strip all markup.
func (p *Parser) summary(item *gofeed.Item) string {
	s := item.Description
	if s == "" {
		s = item.Content
	}
	return p.sanitizer.Sanitize(s)
}

// author returns the first listed author name, if any
func author(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

// fetch retrieves raw content from a URL
func (p *Parser) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)
	// feeds are often fetched by browsers too, look legitimate
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
