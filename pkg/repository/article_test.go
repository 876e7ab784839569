package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memofee/memofee/pkg/domain"
)

func TestArticleRepository_Get(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	feed := makeTestFeed(t, repos, "https://articles.example.com/feed.xml")
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	article := domain.Article{
		ID:        "get-1",
		Title:     "Deep Dive",
		Link:      "https://example.com/deep-dive",
		Published: &published,
		Summary:   "a long read",
		Author:    "Jane",
		Tags:      []string{"go", "databases"},
		FetchedAt: time.Now().UTC(),
	}
	_, err := repos.StoreIngestion(ctx, feed.ID, "", time.Now(), []domain.Article{article})
	require.NoError(t, err)

	got, err := repos.Article.Get(ctx, "get-1")
	require.NoError(t, err)
	assert.Equal(t, feed.ID, got.FeedID)
	assert.Equal(t, "Deep Dive", got.Title)
	assert.Equal(t, []string{"go", "databases"}, []string(got.Tags))
	require.NotNil(t, got.Published)
	assert.True(t, published.Equal(*got.Published))
	assert.False(t, got.HasNotes)
	assert.False(t, got.Starred)

	// flags flip once a starred note exists
	_, err = repos.Note.Upsert(ctx, "get-1", "note", nil, true)
	require.NoError(t, err)
	got, err = repos.Article.Get(ctx, "get-1")
	require.NoError(t, err)
	assert.True(t, got.HasNotes)
	assert.True(t, got.Starred)

	_, err = repos.Article.Get(ctx, "no-such-article")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArticleRepository_ListFilters(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	feedA := makeTestFeed(t, repos, "https://a.example.com/feed.xml")
	feedB := makeTestFeed(t, repos, "https://b.example.com/feed.xml")

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pub := func(offset int) *time.Time {
		ts := base.Add(time.Duration(offset) * time.Hour)
		return &ts
	}

	drafts := []domain.Article{
		{ID: "f-1", Title: "Kubernetes at scale", Link: "https://a.example.com/k8s", Summary: "clusters", Tags: []string{"infra", "k8s"}, Published: pub(4), FetchedAt: base},
		{ID: "f-2", Title: "Plain Go servers", Link: "https://a.example.com/go", Summary: "stdlib first", Tags: []string{"go"}, Published: pub(3), FetchedAt: base},
		{ID: "f-3", Title: "Untimed entry", Link: "https://a.example.com/untimed", Summary: "no publish date", Tags: []string{}, FetchedAt: base.Add(2 * time.Hour)},
	}
	_, err := repos.StoreIngestion(ctx, feedA.ID, "", time.Now(), drafts)
	require.NoError(t, err)

	_, err = repos.StoreIngestion(ctx, feedB.ID, "", time.Now(), []domain.Article{
		{ID: "f-4", Title: "Other feed entry", Link: "https://b.example.com/other", Summary: "contains kubernetes too", Tags: []string{"infra"}, Published: pub(1), FetchedAt: base},
	})
	require.NoError(t, err)

	t.Run("no filter, newest first with fetched-at fallback", func(t *testing.T) {
		items, total, err := repos.Article.List(ctx, domain.ArticlesFilter{}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, items, 4)
		// f-1 published +4h, f-2 +3h, f-3 falls back to fetched +2h, f-4 +1h
		assert.Equal(t, []string{"f-1", "f-2", "f-3", "f-4"}, ids(items))
	})

	t.Run("feed filter", func(t *testing.T) {
		items, total, err := repos.Article.List(ctx, domain.ArticlesFilter{FeedID: feedB.ID}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, "f-4", items[0].ID)
	})

	t.Run("query matches title summary or link case-insensitively", func(t *testing.T) {
		items, _, err := repos.Article.List(ctx, domain.ArticlesFilter{Query: "KUBERNETES"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"f-1", "f-4"}, ids(items))

		items, _, err = repos.Article.List(ctx, domain.ArticlesFilter{Query: "a.example.com/go"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"f-2"}, ids(items))
	})

	t.Run("tag filter is loose substring over serialized tags", func(t *testing.T) {
		items, _, err := repos.Article.List(ctx, domain.ArticlesFilter{Tag: "infra"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"f-1", "f-4"}, ids(items))

		// "k8" matches the tag "k8s", by design
		items, _, err = repos.Article.List(ctx, domain.ArticlesFilter{Tag: "k8"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"f-1"}, ids(items))
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		items, total, err := repos.Article.List(ctx, domain.ArticlesFilter{FeedID: feedA.ID, Query: "kubernetes"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, []string{"f-1"}, ids(items))
	})

	t.Run("starred tri-state", func(t *testing.T) {
		_, err := repos.Note.Upsert(ctx, "f-2", "keeper", nil, true)
		require.NoError(t, err)
		_, err = repos.Note.Upsert(ctx, "f-3", "unstarred note", nil, false)
		require.NoError(t, err)

		yes, no := true, false
		items, total, err := repos.Article.List(ctx, domain.ArticlesFilter{Starred: &yes}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, []string{"f-2"}, ids(items))

		items, total, err = repos.Article.List(ctx, domain.ArticlesFilter{Starred: &no}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.NotContains(t, ids(items), "f-2")

		_, total, err = repos.Article.List(ctx, domain.ArticlesFilter{}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 4, total, "unset starred applies no filter")
	})
}

func TestArticleRepository_Pagination(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	feed := makeTestFeed(t, repos, "https://paging.example.com/feed.xml")

	// same published timestamp for everything forces the ID tiebreak to do
	// the ordering work
	published := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var drafts []domain.Article
	for i := 0; i < 25; i++ {
		drafts = append(drafts, domain.Article{
			ID:        fmt.Sprintf("page-%02d", i),
			Title:     fmt.Sprintf("Article %02d", i),
			Link:      fmt.Sprintf("https://example.com/%02d", i),
			Published: &published,
			FetchedAt: published,
		})
	}
	_, err := repos.StoreIngestion(ctx, feed.ID, "", time.Now(), drafts)
	require.NoError(t, err)

	full, total, err := repos.Article.List(ctx, domain.ArticlesFilter{}, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, total)

	var paged []string
	for page := 1; page <= 4; page++ {
		items, pageTotal, err := repos.Article.List(ctx, domain.ArticlesFilter{}, page, 7)
		require.NoError(t, err)
		assert.Equal(t, 25, pageTotal, "total is pre-pagination on every page")
		paged = append(paged, ids(items)...)
	}

	// union of all pages equals the full sorted match set, no dups, no gaps
	assert.Equal(t, ids(full), paged)

	items, _, err := repos.Article.List(ctx, domain.ArticlesFilter{}, 5, 7)
	require.NoError(t, err)
	assert.Empty(t, items, "past the end is empty, not an error")
}

func ids(items []domain.ArticleWithNotes) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].ID
	}
	return out
}

func TestArticleRepository_TagsColumnAffinity(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	feed := makeTestFeed(t, repos, "https://example.com/affinity.xml")
	makeTestArticle(t, repos, feed.ID, "aff-1", nil)

	// tags must land with TEXT storage class; LIKE never matches a BLOB, so
	// a blob-typed column silently breaks the tag filter
	var storedAs string
	err := repos.DB.GetContext(ctx, &storedAs, "SELECT typeof(tags) FROM articles WHERE id = ?", "aff-1")
	require.NoError(t, err)
	assert.Equal(t, "text", storedAs)

	_, total, err := repos.Article.List(ctx, domain.ArticlesFilter{Tag: "general"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestArticleRepository_NonUTCTimestamps(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	feed := makeTestFeed(t, repos, "https://example.com/zones.xml")

	loc := time.FixedZone("UTC-7", -7*60*60)
	published := time.Date(2024, 5, 1, 10, 0, 0, 0, loc)
	article := domain.Article{
		ID:        "zone-1",
		Title:     "Zoned entry",
		Link:      "https://example.com/zone-1",
		Published: &published,
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, loc),
	}

	added, err := repos.StoreIngestion(ctx, feed.ID, "", time.Now(), []domain.Article{article})
	require.NoError(t, err)
	require.Equal(t, 1, added)

	// a fixed-zone time must round-trip to the same instant, not fail the scan
	got, err := repos.Article.Get(ctx, "zone-1")
	require.NoError(t, err)
	require.NotNil(t, got.Published)
	assert.True(t, got.Published.Equal(published), "published %v != %v", got.Published, published)
	assert.True(t, got.FetchedAt.Equal(article.FetchedAt))
}
