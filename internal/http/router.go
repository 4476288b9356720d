package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyqa/internal/handlers"
	"studyqa/internal/rag"
	"studyqa/internal/service"
	"studyqa/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine    rag.Engine
	Documents service.DocumentService
	Histories service.HistoryService
	Index     vectorstore.IndexStore
	DB        handlers.Pinger
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	askHandler := handlers.NewAskHandler(deps.Engine)
	documentHandler := handlers.NewDocumentHandler(deps.Documents)
	historyHandler := handlers.NewHistoryHandler(deps.Histories)
	healthHandler := handlers.NewHealthHandler(deps.Index, deps.DB)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/v1", func(r chi.Router) {
			r.Use(RequireUser)

			r.Method(http.MethodPost, "/ask", askHandler)

			r.Post("/documents", documentHandler.Upload)
			r.Get("/documents", documentHandler.List)
			r.Get("/documents/{id}", documentHandler.Get)
			r.Delete("/documents/{id}", documentHandler.Delete)

			r.Get("/history", historyHandler.List)
			r.Get("/history/conversations/{id}", historyHandler.Conversation)
			r.Delete("/history/{id}", historyHandler.Delete)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
