// Package server exposes the backend HTTP API: list management, row
// patches, downloads, geocoding, and the streamed extraction endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rendis/leadtap/internal/engine/stream"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/server/liststore"
	"github.com/rendis/leadtap/internal/server/scrape"
)

// Runner abstracts the extraction pipeline; satisfied by
// *scrape.Runner.
type Runner interface {
	Run(ctx context.Context, params model.ExtractParams, emit func(stream.Event)) error
}

type Server struct {
	store    *liststore.Store
	runner   Runner
	geocoder scrape.Geocoder
	log      *zap.Logger
}

func New(store *liststore.Store, runner Runner, geocoder scrape.Geocoder, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, runner: runner, geocoder: geocoder, log: log}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/geocode", s.handleGeocode)
		r.Post("/scrape", s.handleScrape)

		r.Route("/lists", func(r chi.Router) {
			r.Get("/", s.handleLists)
			r.Post("/", s.handleCreateList)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetList)
				r.Delete("/", s.handleDeleteList)
				r.Get("/searches", s.handleSearches)
				r.Put("/row", s.handleUpdateRow)
				r.Put("/note", s.handleUpdateNote)
				r.Get("/download", s.handleDownload)
			})
		})
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
