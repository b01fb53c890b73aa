package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/kbchat/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/kbchat/internal/api/middlewares"
	"github.com/markdave123-py/kbchat/internal/config"
	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/presenter"
	"github.com/markdave123-py/kbchat/internal/services"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	Credentials core.CredentialStore
	Sessions    core.SessionStore
	Objects     core.ObjectClient
	KB          core.KnowledgeBase
	Secret      []byte
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv}
}

// NewRouter wires the page routes, the JSON API and the health check.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	renderer, err := presenter.NewRenderer()
	if err != nil {
		log.Fatalf("parse templates: %v", err)
	}

	authSvc := services.NewAuthService(deps.Credentials, deps.Sessions)
	docSvc := services.NewDocumentService(deps.Objects, cfg.BucketName, cfg.PresignTTL)
	chatSvc := services.NewChatService(deps.Sessions, deps.KB, cfg.KnowledgeBaseID, cfg.GenerationTimeout)

	sessions := appMiddleware.NewSessions(deps.Sessions, deps.Secret, cfg.ModelArn, cfg.SessionIdle, cfg.CookieSecure)

	pageHandler := handlers.NewPageHandler(renderer, docSvc)
	authHandler := handlers.NewAuthHandler(authSvc, sessions, pageHandler)
	chatHandler := handlers.NewChatHandler(chatSvc, docSvc, pageHandler)
	docHandler := handlers.NewDocumentHandler(docSvc, pageHandler)

	limiter := appMiddleware.NewLoginRateLimiter(cfg.LoginPerMinute, http.HandlerFunc(authHandler.TooManyAttempts))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Only behind a proxy that overwrites these headers; otherwise clients
	// could pick their own address and dodge the login throttle.
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(app chi.Router) {
		app.Use(sessions.Middleware)

		app.Get("/", pageHandler.Home)
		app.With(limiter.Middleware).Post("/login", authHandler.Login)

		app.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.RequireAuth)
			protected.Post("/chat", chatHandler.Submit)
			protected.Post("/documents/upload", docHandler.Upload)
		})
	})

	r.Route("/api", func(api chi.Router) {
		if len(cfg.AllowedOrigins) > 0 {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: true,
			}))
		}
		api.Use(sessions.Middleware)

		// public endpoints
		api.With(limiter.Middleware).Post("/login", authHandler.APILogin)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.RequireAuth)
			protected.Get("/session", chatHandler.Session)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Post("/documents/upload", docHandler.APIUpload)
			protected.Post("/chat/query", chatHandler.Query)
		})
	})

	return r
}

// Start runs the HTTP server.
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
