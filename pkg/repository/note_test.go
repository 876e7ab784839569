package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memofee/memofee/pkg/domain"
)

func TestNoteRepository_Upsert(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	feed := makeTestFeed(t, repos, "https://notes.example.com/feed.xml")
	article := makeTestArticle(t, repos, feed.ID, "noted-1", nil)

	t.Run("creates on first call", func(t *testing.T) {
		note, err := repos.Note.Upsert(ctx, article.ID, "first thoughts", []string{"todo"}, false)
		require.NoError(t, err)
		assert.NotEmpty(t, note.ID)
		assert.Equal(t, article.ID, note.ArticleID)
		assert.Equal(t, "first thoughts", note.Body)
		assert.Equal(t, []string{"todo"}, []string(note.Tags))
		assert.False(t, note.Starred)
		assert.Equal(t, note.CreatedAt, note.UpdatedAt)
	})

	t.Run("second call updates in place", func(t *testing.T) {
		before, err := repos.Note.GetByArticle(ctx, article.ID)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond) // updated_at must move
		note, err := repos.Note.Upsert(ctx, article.ID, "revised", []string{"done"}, true)
		require.NoError(t, err)

		assert.Equal(t, before.ID, note.ID, "same note, not a second one")
		assert.Equal(t, "revised", note.Body)
		assert.True(t, note.Starred)
		assert.Equal(t, before.CreatedAt, note.CreatedAt)
		assert.True(t, note.UpdatedAt.After(before.UpdatedAt))

		notes, err := repos.Note.ListByArticle(ctx, article.ID)
		require.NoError(t, err)
		assert.Len(t, notes, 1)
	})

	t.Run("unknown article", func(t *testing.T) {
		_, err := repos.Note.Upsert(ctx, "no-such-article", "body", nil, false)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestNoteRepository_ConcurrentUpsert(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	feed := makeTestFeed(t, repos, "https://race.example.com/feed.xml")
	article := makeTestArticle(t, repos, feed.ID, "raced-1", nil)

	// all racers target the same article; the unique constraint on
	// article_id must collapse them into a single note
	const racers = 10
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Note.Upsert(ctx, article.ID, "concurrent body", nil, true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	notes, err := repos.Note.ListByArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestNoteRepository_Delete(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	feed := makeTestFeed(t, repos, "https://del.example.com/feed.xml")
	article := makeTestArticle(t, repos, feed.ID, "del-1", nil)

	note, err := repos.Note.Upsert(ctx, article.ID, "to be removed", nil, false)
	require.NoError(t, err)

	t.Run("wrong article id does not delete", func(t *testing.T) {
		err := repos.Note.Delete(ctx, "another-article", note.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("deletes by note and article id", func(t *testing.T) {
		require.NoError(t, repos.Note.Delete(ctx, article.ID, note.ID))

		_, err := repos.Note.GetByArticle(ctx, article.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = repos.Note.Delete(ctx, article.ID, note.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
