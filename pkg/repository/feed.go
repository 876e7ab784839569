package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/memofee/memofee/pkg/domain"
)

// FeedRepository handles feed-related database operations
type FeedRepository struct {
	db *sqlx.DB
}

// feedSQL represents a feed row for SQL operations
type feedSQL struct {
	ID            string     `db:"id"`
	URL           string     `db:"url"`
	Title         string     `db:"title"`
	CreatedAt     time.Time  `db:"created_at"`
	LastFetchedAt *time.Time `db:"last_fetched_at"`
	LastError     string     `db:"last_error"`
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(database *sqlx.DB) *FeedRepository {
	return &FeedRepository{db: database}
}

// Create inserts a new feed, assigning its ID and creation time. A duplicate
// URL surfaces as domain.ErrConflict; the unique constraint is the real
// guard, callers may pre-check but must not rely on it.
func (r *FeedRepository) Create(ctx context.Context, feed *domain.Feed) error {
	if feed.URL == "" {
		return fmt.Errorf("feed URL is required: %w", domain.ErrValidation)
	}
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO feeds (id, url, title, created_at, last_fetched_at, last_error)
		VALUES (:id, :url, :title, :created_at, :last_fetched_at, :last_error)
	`
	if _, err := r.db.NamedExecContext(ctx, query, toSQLFeed(feed)); err != nil {
		if isUniqueError(err, "feeds.url") {
			return fmt.Errorf("feed with URL %s %w", feed.URL, domain.ErrConflict)
		}
		return fmt.Errorf("create feed: %w", err)
	}
	return nil
}

// Get retrieves a feed by ID
func (r *FeedRepository) Get(ctx context.Context, id string) (*domain.Feed, error) {
	var row feedSQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM feeds WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feed %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return toDomainFeed(&row), nil
}

// GetByURL retrieves a feed by its URL
func (r *FeedRepository) GetByURL(ctx context.Context, url string) (*domain.Feed, error) {
	var row feedSQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM feeds WHERE url = ?", url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feed with URL %s: %w", url, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get feed by url: %w", err)
	}
	return toDomainFeed(&row), nil
}

// List retrieves all feeds, newest first
func (r *FeedRepository) List(ctx context.Context) ([]domain.Feed, error) {
	var rows []feedSQL
	err := r.db.SelectContext(ctx, &rows, "SELECT * FROM feeds ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}

	feeds := make([]domain.Feed, len(rows))
	for i := range rows {
		feeds[i] = *toDomainFeed(&rows[i])
	}
	return feeds, nil
}

// UpdateError records a failed fetch, leaving title and last_fetched_at as
// they were
func (r *FeedRepository) UpdateError(ctx context.Context, feedID, errMsg string) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, "UPDATE feeds SET last_error = ? WHERE id = ?", errMsg, feedID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("update feed error: %w", err)}
		}
		return nil
	})
}

// Delete removes a feed; articles and notes go with it via cascade
func (r *FeedRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feed %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func toSQLFeed(f *domain.Feed) *feedSQL {
	return &feedSQL{
		ID:            f.ID,
		URL:           f.URL,
		Title:         f.Title,
		CreatedAt:     f.CreatedAt,
		LastFetchedAt: f.LastFetchedAt,
		LastError:     f.LastError,
	}
}

func toDomainFeed(row *feedSQL) *domain.Feed {
	return &domain.Feed{
		ID:            row.ID,
		URL:           row.URL,
		Title:         row.Title,
		CreatedAt:     row.CreatedAt,
		LastFetchedAt: row.LastFetchedAt,
		LastError:     row.LastError,
	}
}
