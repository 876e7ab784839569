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

// NoteRepository handles note-related database operations
type NoteRepository struct {
	db *sqlx.DB
}

// noteSQL represents a note row for SQL operations
type noteSQL struct {
	ID        string    `db:"id"`
	ArticleID string    `db:"article_id"`
	Body      string    `db:"body"`
	Tags      tagsSQL   `db:"tags"`
	Starred   bool      `db:"starred"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewNoteRepository creates a new note repository
func NewNoteRepository(database *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: database}
}

// Upsert creates or replaces the single note of an article. The unique
// constraint on article_id turns a concurrent double insert into an update,
// so two racing upserts still leave exactly one note. created_at survives
// updates, updated_at is bumped.
func (r *NoteRepository) Upsert(ctx context.Context, articleID, body string, tags []string, starred bool) (*domain.Note, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM articles WHERE id = ?)", articleID)
	if err != nil {
		return nil, fmt.Errorf("check article exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	row := &noteSQL{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		Body:      body,
		Tags:      tagsSQL(tags),
		Starred:   starred,
		CreatedAt: now,
		UpdatedAt: now,
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	err = retrier.Do(ctx, func() error {
		query := `
			INSERT INTO notes (id, article_id, body, tags, starred, created_at, updated_at)
			VALUES (:id, :article_id, :body, :tags, :starred, :created_at, :updated_at)
			ON CONFLICT(article_id) DO UPDATE SET
				body = excluded.body,
				tags = excluded.tags,
				starred = excluded.starred,
				updated_at = excluded.updated_at
		`
		if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("upsert note: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// re-read: on the update path the stored id and created_at belong to the
	// original note, not the attempted insert
	return r.GetByArticle(ctx, articleID)
}

// GetByArticle retrieves the note attached to an article
func (r *NoteRepository) GetByArticle(ctx context.Context, articleID string) (*domain.Note, error) {
	var row noteSQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM notes WHERE article_id = ?", articleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note for article %s: %w", articleID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get note by article: %w", err)
	}
	return toDomainNote(&row), nil
}

// ListByArticle retrieves the notes of an article, most recently updated
// first. Holds at most one element while the one-note invariant stands, kept
// as a list to match the API shape.
func (r *NoteRepository) ListByArticle(ctx context.Context, articleID string) ([]domain.Note, error) {
	var rows []noteSQL
	err := r.db.SelectContext(ctx, &rows, "SELECT * FROM notes WHERE article_id = ? ORDER BY updated_at DESC", articleID)
	if err != nil {
		return nil, fmt.Errorf("list notes by article: %w", err)
	}

	notes := make([]domain.Note, len(rows))
	for i := range rows {
		notes[i] = *toDomainNote(&rows[i])
	}
	return notes, nil
}

// Delete removes a note identified by both its own ID and its article ID
func (r *NoteRepository) Delete(ctx context.Context, articleID, noteID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ? AND article_id = ?", noteID, articleID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %s for article %s: %w", noteID, articleID, domain.ErrNotFound)
	}
	return nil
}

func toDomainNote(row *noteSQL) *domain.Note {
	return &domain.Note{
		ID:        row.ID,
		ArticleID: row.ArticleID,
		Body:      row.Body,
		Tags:      row.Tags,
		Starred:   row.Starred,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
