package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/spacechat/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/spacechat/internal/api/middlewares"
	"github.com/markdave123-py/spacechat/internal/config"
	"github.com/markdave123-py/spacechat/internal/core/chat_engine"
	"github.com/markdave123-py/spacechat/internal/services"
)

// Handlers are the services the HTTP routes call into.
type Handlers struct {
	Spaces    *services.SpaceService
	Documents *services.DocumentService
	Links     *services.LinkService
	Validator *chat_engine.LinkValidator
	Responder *chat_engine.Responder
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, h Handlers) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// NewRouter returns the API routes. The public chat route streams, so only the
// owner routes run under a request timeout.
func NewRouter(cfg *config.Config, h Handlers) http.Handler {
	spaceHandler := handlers.NewSpaceHandler(h.Spaces)
	docHandler := handlers.NewDocumentHandler(h.Documents)
	linkHandler := handlers.NewLinkHandler(h.Links)
	publicHandler := handlers.NewPublicChatHandler(h.Validator, h.Responder)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/public/chat", publicHandler.Handle)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			protected.Use(middleware.Timeout(6 * time.Minute))

			protected.Post("/spaces", spaceHandler.CreateSpace)
			protected.Get("/spaces/{spaceID}/documents", docHandler.GetDocuments)
			protected.Post("/spaces/{spaceID}/documents/upload", docHandler.UploadDocument)
			protected.Post("/spaces/{spaceID}/documents/note", docHandler.AddNote)
			protected.Post("/spaces/{spaceID}/documents/url", docHandler.AddURL)
			protected.Post("/documents/{documentID}/reprocess", docHandler.Reprocess)
			protected.Delete("/documents/{documentID}", docHandler.DeleteDocument)

			protected.Post("/spaces/{spaceID}/links", linkHandler.CreateLink)
			protected.Post("/links/{linkID}/revoke", linkHandler.RevokeLink)
			protected.Post("/links/{linkID}/restore", linkHandler.RestoreLink)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
