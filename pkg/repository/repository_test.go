package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memofee/memofee/pkg/domain"
)

func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()

	dsn := "file:" + t.TempDir() + "/test.db?cache=shared&mode=rwc&_txlock=immediate"
	repos, err := NewRepositories(context.Background(), Config{DSN: dsn, MaxOpenConns: 10, MaxIdleConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	return repos
}

// makeTestFeed inserts a feed and returns it
func makeTestFeed(t *testing.T, repos *Repositories, url string) *domain.Feed {
	t.Helper()
	feed := &domain.Feed{URL: url, Title: "Feed " + url}
	require.NoError(t, repos.Feed.Create(context.Background(), feed))
	return feed
}

// makeTestArticle stores one article via the ingestion path and returns it
func makeTestArticle(t *testing.T, repos *Repositories, feedID, id string, published *time.Time) domain.Article {
	t.Helper()
	article := domain.Article{
		ID:        id,
		Title:     "Article " + id,
		Link:      "https://example.com/" + id,
		Published: published,
		Summary:   "summary of " + id,
		Tags:      []string{"general"},
		FetchedAt: time.Now().UTC(),
	}
	added, err := repos.StoreIngestion(context.Background(), feedID, "", time.Now(), []domain.Article{article})
	require.NoError(t, err)
	require.Equal(t, 1, added)
	return article
}

func TestNewRepositories(t *testing.T) {
	repos := setupTestRepos(t)

	require.NoError(t, repos.Ping(context.Background()))

	var count int
	err := repos.DB.Get(&count, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name IN ('feeds', 'articles', 'notes')
	`)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIsLockError(t *testing.T) {
	assert.False(t, isLockError(nil))
	assert.False(t, isLockError(assert.AnError))
	assert.True(t, isLockError(errDatabaseLocked{}))
}

type errDatabaseLocked struct{}

func (errDatabaseLocked) Error() string { return "database is locked (5) (SQLITE_BUSY)" }
