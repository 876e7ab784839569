package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/memofee/memofee/pkg/domain"
)

// FeedStore is the feed-record side of the persistence layer
type FeedStore interface {
	Create(ctx context.Context, feed *domain.Feed) error
	Get(ctx context.Context, id string) (*domain.Feed, error)
	GetByURL(ctx context.Context, url string) (*domain.Feed, error)
	List(ctx context.Context) ([]domain.Feed, error)
	UpdateError(ctx context.Context, feedID, errMsg string) error
	Delete(ctx context.Context, id string) error
}

// IngestStore commits a successful fetch outcome atomically: new articles
// plus feed bookkeeping in one transaction
type IngestStore interface {
	StoreIngestion(ctx context.Context, feedID, title string, fetchedAt time.Time, drafts []domain.Article) (added int, err error)
}

// FeedParser fetches a feed URL and returns its title and article drafts
type FeedParser interface {
	Parse(ctx context.Context, url string) (title string, drafts []domain.Article, err error)
}

// Service reconciles freshly parsed feed content against the stored corpus.
// Ingestion is additive-only: an article already present by ID is never
// modified, whatever the remote now says about it.
type Service struct {
	feeds      FeedStore
	ingest     IngestStore
	parser     FeedParser
	maxWorkers int
}

// NewService creates a reconciler service. maxWorkers caps the concurrency
// of RefreshAll.
func NewService(feeds FeedStore, ingest IngestStore, parser FeedParser, maxWorkers int) *Service {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Service{feeds: feeds, ingest: ingest, parser: parser, maxWorkers: maxWorkers}
}

// Create registers a new feed and performs its first ingestion. When the
// initial fetch or parse fails the feed is still persisted with the error
// recorded, so the user sees a created-but-broken feed they can retry; the
// returned feed is non-nil alongside the error in that case.
func (s *Service) Create(ctx context.Context, url string) (*domain.Feed, error) {
	if url == "" {
		return nil, fmt.Errorf("feed URL is required: %w", domain.ErrValidation)
	}

	// friendly pre-check; the unique constraint on feeds.url is what
	// actually decides concurrent creations
	switch _, err := s.feeds.GetByURL(ctx, url); {
	case err == nil:
		return nil, fmt.Errorf("feed with URL %s %w", url, domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check feed URL %s: %w", url, err)
	}

	// network boundary crossed before any store mutation
	title, drafts, parseErr := s.parser.Parse(ctx, url)

	feed := &domain.Feed{URL: url}
	if parseErr != nil {
		feed.LastError = parseErr.Error()
		if err := s.feeds.Create(ctx, feed); err != nil {
			return nil, err
		}
		lgr.Printf("[WARN] feed %s created with fetch error: %v", url, parseErr)
		return feed, parseErr
	}

	feed.Title = title
	if err := s.feeds.Create(ctx, feed); err != nil {
		return nil, err
	}

	added, err := s.ingest.StoreIngestion(ctx, feed.ID, title, time.Now(), drafts)
	if err != nil {
		return nil, err
	}

	// re-read for the stored last_fetched_at
	stored, err := s.feeds.Get(ctx, feed.ID)
	if err != nil {
		return nil, err
	}

	lgr.Printf("[INFO] created feed %s (%s), %d articles", stored.ID, url, added)
	return stored, nil
}

// Refresh re-ingests a feed and returns the number of newly added articles.
// A fetch or parse failure is recorded into the feed's lastError and
// returned; previously stored articles and feed state stay as they were.
func (s *Service) Refresh(ctx context.Context, feedID string) (added int, err error) {
	feed, err := s.feeds.Get(ctx, feedID)
	if err != nil {
		return 0, err
	}

	title, drafts, parseErr := s.parser.Parse(ctx, feed.URL)
	if parseErr != nil {
		if updErr := s.feeds.UpdateError(ctx, feed.ID, parseErr.Error()); updErr != nil {
			lgr.Printf("[ERROR] failed to record fetch error for feed %s: %v", feed.ID, updErr)
		}
		return 0, parseErr
	}

	added, err = s.ingest.StoreIngestion(ctx, feed.ID, title, time.Now(), drafts)
	if err != nil {
		return 0, err
	}

	lgr.Printf("[INFO] refreshed feed %s (%s), %d new articles", feed.ID, feed.URL, added)
	return added, nil
}

// RefreshAllResult summarizes a sweep over all registered feeds
type RefreshAllResult struct {
	Feeds  int `json:"feeds"`
	Added  int `json:"added"`
	Failed int `json:"failed"`
}

// RefreshAll refreshes every registered feed with a bounded worker pool.
// Per-feed failures are recorded in the feed rows and counted, they don't
// abort the sweep.
func (s *Service) RefreshAll(ctx context.Context) (RefreshAllResult, error) {
	feeds, err := s.feeds.List(ctx)
	if err != nil {
		return RefreshAllResult{}, err
	}

	res := RefreshAllResult{Feeds: len(feeds)}
	counts := make([]int, len(feeds))
	failed := make([]bool, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)
	for i, f := range feeds {
		g.Go(func() error {
			added, err := s.Refresh(gctx, f.ID)
			if err != nil {
				lgr.Printf("[WARN] refresh of feed %s failed: %v", f.URL, err)
				failed[i] = true
				return nil
			}
			counts[i] = added
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures are per-feed state

	for i := range feeds {
		res.Added += counts[i]
		if failed[i] {
			res.Failed++
		}
	}
	return res, nil
}

// Delete removes a feed and, via cascade, its articles and their notes
func (s *Service) Delete(ctx context.Context, feedID string) error {
	return s.feeds.Delete(ctx, feedID)
}
