package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reverie-dev/reverie/pkg/usecase"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

type Server struct {
	router *chi.Mux
	uc     *usecase.UseCases
}

type Options func(*Server)

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(userAuth)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.createConversation)
			r.Get("/", s.listConversations)

			r.Route("/{conversationID}", func(r chi.Router) {
				r.Get("/", s.getConversation)
				r.Delete("/", s.deleteConversation)
				r.Post("/archive", s.archiveConversation)
				r.Post("/start", s.startConversation)
				r.Get("/messages", s.listMessages)
				r.Post("/messages", s.postMessage)
			})
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", s.listMemories)
			r.Get("/search", s.searchMemories)
			r.Get("/stats", s.memoryStats)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
