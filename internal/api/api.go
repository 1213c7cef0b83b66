// Package api exposes the onboarding engine over HTTP. The transport stays
// thin: handlers decode JSON, delegate to the engine, and map its error
// taxonomy onto status codes. Turns against terminal sessions are valid
// requests that return the terminal snapshot, not errors.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/engine"
	"github.com/mandi-labs/onboard-cli/internal/store"
)

// Server is the HTTP transport for the onboarding engine.
type Server struct {
	engine *engine.Engine
	store  store.Store
}

// New creates a Server. The store is consulted directly only for the
// health endpoint's active-session count.
func New(eng *engine.Engine, st store.Store) *Server {
	return &Server{engine: eng, store: st}
}

// Router builds the chi handler with CORS, request logging, and panic
// recovery applied to every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Route("/onboard", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/continue", s.handleContinue)
		r.Get("/status/{sessionID}", s.handleStatus)
		r.Get("/export/{sessionID}", s.handleExport)
		r.Post("/end/{sessionID}", s.handleEnd)
		r.Get("/prompt/{sessionID}", s.handlePrompt)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// requestLogger writes one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
