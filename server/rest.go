package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/memofee/memofee/pkg/domain"
)

// feedJSON is the wire shape of a feed
type feedJSON struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastFetchedAt *time.Time `json:"lastFetchedAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// articleJSON is the wire shape of an article
type articleJSON struct {
	ID          string     `json:"id"`
	FeedID      string     `json:"feedId"`
	Title       string     `json:"title"`
	LinkURL     string     `json:"linkUrl"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags"`
	FetchedAt   time.Time  `json:"fetchedAt"`
	HasNotes    bool       `json:"hasNotes"`
	Starred     bool       `json:"starred"`
}

// noteJSON is the wire shape of a note
type noteJSON struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"articleId"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	Starred   bool      `json:"starred"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toFeedJSON(f *domain.Feed) feedJSON {
	return feedJSON{
		ID:            f.ID,
		URL:           f.URL,
		Title:         f.Title,
		CreatedAt:     f.CreatedAt,
		LastFetchedAt: f.LastFetchedAt,
		LastError:     f.LastError,
	}
}

func toArticleJSON(a *domain.ArticleWithNotes) articleJSON {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return articleJSON{
		ID:          a.ID,
		FeedID:      a.FeedID,
		Title:       a.Title,
		LinkURL:     a.Link,
		PublishedAt: a.Published,
		Summary:     a.Summary,
		Author:      a.Author,
		Tags:        tags,
		FetchedAt:   a.FetchedAt,
		HasNotes:    a.HasNotes,
		Starred:     a.Starred,
	}
}

func toNoteJSON(n *domain.Note) noteJSON {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return noteJSON{
		ID:        n.ID,
		ArticleID: n.ArticleID,
		Body:      n.Body,
		Tags:      tags,
		Starred:   n.Starred,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

// listFeedsHandler returns all feeds, newest first
func (s *Server) listFeedsHandler(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.feeds.List(r.Context())
	if err != nil {
		log.Printf("[ERROR] failed to list feeds: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]feedJSON, len(feeds))
	for i := range feeds {
		resp[i] = toFeedJSON(&feeds[i])
	}
	renderJSON(w, r, http.StatusOK, resp)
}

// createFeedHandler registers a feed and runs its first ingestion. A feed
// whose initial fetch fails is still created with the error recorded; the
// response is the fetch failure in that case.
func (s *Server) createFeedHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}

	created, err := s.ingestor.Create(r.Context(), req.URL)
	if err != nil {
		log.Printf("[WARN] failed to create feed %q: %v", req.URL, err)
		renderError(w, r, err, statusForError(err))
		return
	}

	renderJSON(w, r, http.StatusCreated, toFeedJSON(created))
}

// deleteFeedHandler removes a feed with its articles and notes
func (s *Server) deleteFeedHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestor.Delete(r.Context(), r.PathValue("id")); err != nil {
		renderError(w, r, err, statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refreshFeedHandler re-ingests a single feed
func (s *Server) refreshFeedHandler(w http.ResponseWriter, r *http.Request) {
	added, err := s.ingestor.Refresh(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[WARN] failed to refresh feed %s: %v", r.PathValue("id"), err)
		renderError(w, r, err, statusForError(err))
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":       "feed refreshed",
		"articlesAdded": added,
	})
}

// refreshAllFeedsHandler re-ingests every registered feed
func (s *Server) refreshAllFeedsHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingestor.RefreshAll(r.Context())
	if err != nil {
		log.Printf("[ERROR] failed to refresh feeds: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, result)
}

// listArticlesHandler returns a filtered, paginated page of articles
func (s *Server) listArticlesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.ArticlesFilter{
		FeedID: q.Get("feedId"),
		Query:  q.Get("q"),
		Tag:    q.Get("tag"),
	}
	if v := q.Get("starred"); v != "" {
		starred, err := strconv.ParseBool(v)
		if err != nil {
			renderError(w, r, err, http.StatusBadRequest)
			return
		}
		filter.Starred = &starred
	}

	page := intParam(q.Get("page"), 1)
	pageSize := intParam(q.Get("pageSize"), 20)

	items, total, err := s.articles.List(r.Context(), filter, page, pageSize)
	if err != nil {
		log.Printf("[ERROR] failed to list articles: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]articleJSON, len(items))
	for i := range items {
		resp[i] = toArticleJSON(&items[i])
	}
	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"items":      resp,
		"totalCount": total,
		"page":       page,
		"pageSize":   pageSize,
	})
}

// getArticleHandler returns a single article by ID
func (s *Server) getArticleHandler(w http.ResponseWriter, r *http.Request) {
	article, err := s.articles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		renderError(w, r, err, statusForError(err))
		return
	}
	renderJSON(w, r, http.StatusOK, toArticleJSON(article))
}

// listNotesHandler returns the notes of an article
func (s *Server) listNotesHandler(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.ListByArticle(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[ERROR] failed to list notes: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]noteJSON, len(notes))
	for i := range notes {
		resp[i] = toNoteJSON(&notes[i])
	}
	renderJSON(w, r, http.StatusOK, resp)
}

// upsertNoteHandler creates or replaces the single note of an article
func (s *Server) upsertNoteHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body    string   `json:"body"`
		Tags    []string `json:"tags"`
		Starred bool     `json:"starred"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}

	note, err := s.notes.Upsert(r.Context(), r.PathValue("id"), req.Body, req.Tags, req.Starred)
	if err != nil {
		renderError(w, r, err, statusForError(err))
		return
	}
	renderJSON(w, r, http.StatusOK, toNoteJSON(note))
}

// deleteNoteHandler removes a note from an article
func (s *Server) deleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.Delete(r.Context(), r.PathValue("id"), r.PathValue("noteId")); err != nil {
		renderError(w, r, err, statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// intParam parses a positive integer query parameter with a default
func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
