package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/memofee/memofee/pkg/domain"
	"github.com/memofee/memofee/pkg/feed"
)

// Server represents HTTP server instance
type Server struct {
	Config
	ingestor Ingestor
	feeds    FeedLister
	articles ArticleStore
	notes    NoteStore

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Config holds server settings
type Config struct {
	Listen  string
	Timeout time.Duration
	Version string
	Debug   bool
}

// Ingestor drives feed registration and refresh
type Ingestor interface {
	Create(ctx context.Context, url string) (*domain.Feed, error)
	Refresh(ctx context.Context, feedID string) (added int, err error)
	RefreshAll(ctx context.Context) (feed.RefreshAllResult, error)
	Delete(ctx context.Context, feedID string) error
}

// FeedLister lists registered feeds
type FeedLister interface {
	List(ctx context.Context) ([]domain.Feed, error)
}

// ArticleStore reads the stored article corpus
type ArticleStore interface {
	Get(ctx context.Context, id string) (*domain.ArticleWithNotes, error)
	List(ctx context.Context, filter domain.ArticlesFilter, page, pageSize int) (items []domain.ArticleWithNotes, total int, err error)
}

// NoteStore reads and writes per-article notes
type NoteStore interface {
	ListByArticle(ctx context.Context, articleID string) ([]domain.Note, error)
	Upsert(ctx context.Context, articleID, body string, tags []string, starred bool) (*domain.Note, error)
	Delete(ctx context.Context, articleID, noteID string) error
}

// New initializes a server instance
func New(cfg Config, ingestor Ingestor, feeds FeedLister, articles ArticleStore, notes NoteStore) *Server {
	s := &Server{
		Config:   cfg,
		ingestor: ingestor,
		feeds:    feeds,
		articles: articles,
		notes:    notes,
		router:   routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[INFO] starting server on %s", s.Listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         s.Listen,
		Handler:      s.router,
		ReadTimeout:  s.Timeout,
		WriteTimeout: s.Timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("memofee", "memofee", s.Version))
	s.router.Use(rest.Ping)

	if s.Debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)

		r.HandleFunc("GET /feeds", s.listFeedsHandler)
		r.HandleFunc("POST /feeds", s.createFeedHandler)
		r.HandleFunc("POST /feeds/refresh", s.refreshAllFeedsHandler)
		r.HandleFunc("DELETE /feeds/{id}", s.deleteFeedHandler)
		r.HandleFunc("POST /feeds/{id}/refresh", s.refreshFeedHandler)

		r.HandleFunc("GET /articles", s.listArticlesHandler)
		r.HandleFunc("GET /articles/{id}", s.getArticleHandler)

		r.HandleFunc("GET /articles/{id}/notes", s.listNotesHandler)
		r.HandleFunc("PUT /articles/{id}/notes", s.upsertNoteHandler)
		r.HandleFunc("DELETE /articles/{id}/notes/{noteId}", s.deleteNoteHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.Version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}

// statusForError maps the domain error taxonomy to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}

	var fetchErr *domain.FetchError
	var parseErr *domain.ParseError
	if errors.As(err, &fetchErr) || errors.As(err, &parseErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
