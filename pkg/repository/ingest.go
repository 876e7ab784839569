package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/memofee/memofee/pkg/domain"
)

// StoreIngestion commits the outcome of a successful fetch+parse in a single
// transaction: inserts drafts whose ID is not yet present (existing articles
// are never touched), updates the feed title when a non-empty one was
// parsed, sets last_fetched_at, and clears last_error. Returns the number of
// articles actually added.
func (r *Repositories) StoreIngestion(ctx context.Context, feedID, title string, fetchedAt time.Time, drafts []domain.Article) (added int, err error) {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	err = retrier.Do(ctx, func() error {
		added = 0
		txErr := r.inTransaction(ctx, func(tx *sqlx.Tx) error {
			insert := `
				INSERT INTO articles (id, feed_id, title, link, published, summary, author, tags, fetched_at)
				VALUES (:id, :feed_id, :title, :link, :published, :summary, :author, :tags, :fetched_at)
				ON CONFLICT(id) DO NOTHING
			`
			for i := range drafts {
				row := toSQLArticle(&drafts[i], feedID)
				result, err := tx.NamedExecContext(ctx, insert, row)
				if err != nil {
					return fmt.Errorf("insert article %s: %w", drafts[i].ID, err)
				}
				affected, err := result.RowsAffected()
				if err != nil {
					return fmt.Errorf("get rows affected: %w", err)
				}
				added += int(affected)
			}

			update := `
				UPDATE feeds
				SET title = CASE WHEN ? != '' THEN ? ELSE title END,
				    last_fetched_at = ?,
				    last_error = ''
				WHERE id = ?
			`
			if _, err := tx.ExecContext(ctx, update, title, title, fetchedAt.UTC(), feedID); err != nil {
				return fmt.Errorf("update feed after fetch: %w", err)
			}
			return nil
		})

		if txErr != nil {
			if isLockError(txErr) {
				return txErr // retry
			}
			return &criticalError{err: txErr}
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("store ingestion for feed %s: %w", feedID, err)
	}
	return added, nil
}

// inTransaction executes a function within a database transaction
func (r *Repositories) inTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback also failed: %s)", err, rbErr.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
