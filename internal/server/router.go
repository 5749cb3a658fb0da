package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mementolabs/memento/internal/api"
	"github.com/mementolabs/memento/internal/api/handlers"
	"github.com/mementolabs/memento/internal/api/middleware"
)

type RouterConfig struct {
	ChatHandler     *handlers.ChatHandler
	DocumentHandler *handlers.DocumentHandler
	ThreadHandler   *handlers.ThreadHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 33 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Post("/chat", cfg.ChatHandler.Chat)

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", cfg.ChatHandler.NewThread)
			r.Get("/{id}/history", cfg.ThreadHandler.History)
			r.Get("/{id}/export", cfg.ThreadHandler.Export)
			r.Get("/{id}/stats", cfg.ThreadHandler.Stats)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Upload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Post("/query", cfg.DocumentHandler.Query)
			r.Get("/{id}/download", cfg.DocumentHandler.Download)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})
	})

	return r
}
