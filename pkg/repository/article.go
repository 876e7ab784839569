package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/memofee/memofee/pkg/domain"
)

// ArticleRepository handles article-related database operations, including
// the filtered listing used by the API
type ArticleRepository struct {
	db *sqlx.DB
}

// articleSQL represents an article row for SQL operations
type articleSQL struct {
	ID        string     `db:"id"`
	FeedID    string     `db:"feed_id"`
	Title     string     `db:"title"`
	Link      string     `db:"link"`
	Published *time.Time `db:"published"`
	Summary   string     `db:"summary"`
	Author    string     `db:"author"`
	Tags      tagsSQL    `db:"tags"`
	FetchedAt time.Time  `db:"fetched_at"`

	// joined data, populated by listing queries only
	HasNotes bool `db:"has_notes"`
	Starred  bool `db:"starred"`
}

// tagsSQL is a JSON array of tag strings for SQL operations
type tagsSQL []string

// Value implements driver.Valuer for database storage. The JSON goes out as
// a string so the column gets TEXT affinity; a []byte would be stored as a
// BLOB, and LIKE never matches a BLOB operand.
func (t tagsSQL) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (t *tagsSQL) Scan(value interface{}) error {
	if value == nil {
		*t = tagsSQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return json.Unmarshal([]byte("[]"), t)
	}

	return json.Unmarshal(data, t)
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(database *sqlx.DB) *ArticleRepository {
	return &ArticleRepository{db: database}
}

// Get retrieves an article by ID with its note-derived flags
func (r *ArticleRepository) Get(ctx context.Context, id string) (*domain.ArticleWithNotes, error) {
	var row articleSQL
	query := `
		SELECT a.*,
		       EXISTS(SELECT 1 FROM notes n WHERE n.article_id = a.id) AS has_notes,
		       EXISTS(SELECT 1 FROM notes n WHERE n.article_id = a.id AND n.starred = 1) AS starred
		FROM articles a
		WHERE a.id = ?
	`
	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	return toDomainArticle(&row), nil
}

// exists checks if an article with the given ID is already stored, a test
// helper for the conflict-ignoring ingestion path
func (r *ArticleRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM articles WHERE id = ?)", id)
	if err != nil {
		return false, fmt.Errorf("check article exists: %w", err)
	}
	return exists, nil
}

// List retrieves articles matching the filter, newest first, with 1-indexed
// pagination. Total is the match count before pagination. Ordering falls
// back to fetched_at when published is absent, with the article ID as a
// stable tiebreak so pages never overlap or skip rows.
func (r *ArticleRepository) List(ctx context.Context, filter domain.ArticlesFilter, page, pageSize int) (items []domain.ArticleWithNotes, total int, err error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where, args := buildArticleFilter(filter)

	countQuery := "SELECT COUNT(*) FROM articles a" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	listQuery := `
		SELECT a.*,
		       EXISTS(SELECT 1 FROM notes n WHERE n.article_id = a.id) AS has_notes,
		       EXISTS(SELECT 1 FROM notes n WHERE n.article_id = a.id AND n.starred = 1) AS starred
		FROM articles a` + where + `
		ORDER BY COALESCE(a.published, a.fetched_at) DESC, a.id
		LIMIT ? OFFSET ?
	`
	args = append(args, pageSize, (page-1)*pageSize)

	var rows []articleSQL
	if err := r.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}

	items = make([]domain.ArticleWithNotes, len(rows))
	for i := range rows {
		items[i] = *toDomainArticle(&rows[i])
	}
	return items, total, nil
}

// buildArticleFilter renders filter predicates as a WHERE clause. All
// predicates combine with AND; zero values add nothing.
func buildArticleFilter(filter domain.ArticlesFilter) (where string, args []interface{}) {
	conds := []string{}

	if filter.FeedID != "" {
		conds = append(conds, "a.feed_id = ?")
		args = append(args, filter.FeedID)
	}
	if filter.Query != "" {
		conds = append(conds, "(a.title LIKE ? OR a.summary LIKE ? OR a.link LIKE ?)")
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Tag != "" {
		// deliberately loose: substring match against the serialized tag
		// list, a filter of "x" matches a tag "xyz"
		conds = append(conds, "a.tags LIKE ?")
		args = append(args, "%"+filter.Tag+"%")
	}
	if filter.Starred != nil {
		if *filter.Starred {
			conds = append(conds, "EXISTS(SELECT 1 FROM notes n WHERE n.article_id = a.id AND n.starred = 1)")
		} else {
			conds = append(conds, "NOT EXISTS(SELECT 1 FROM notes n WHERE n.article_id = a.id AND n.starred = 1)")
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	where = " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func toSQLArticle(a *domain.Article, feedID string) *articleSQL {
	// timestamps go in as UTC: the driver renders non-UTC times in a format
	// it cannot scan back, and the COALESCE ordering compares them as text
	var published *time.Time
	if a.Published != nil {
		t := a.Published.UTC()
		published = &t
	}
	return &articleSQL{
		ID:        a.ID,
		FeedID:    feedID,
		Title:     a.Title,
		Link:      a.Link,
		Published: published,
		Summary:   a.Summary,
		Author:    a.Author,
		Tags:      tagsSQL(a.Tags),
		FetchedAt: a.FetchedAt.UTC(),
	}
}

func toDomainArticle(row *articleSQL) *domain.ArticleWithNotes {
	return &domain.ArticleWithNotes{
		Article: domain.Article{
			ID:        row.ID,
			FeedID:    row.FeedID,
			Title:     row.Title,
			Link:      row.Link,
			Published: row.Published,
			Summary:   row.Summary,
			Author:    row.Author,
			Tags:      row.Tags,
			FetchedAt: row.FetchedAt,
		},
		HasNotes: row.HasNotes,
		Starred:  row.Starred,
	}
}
