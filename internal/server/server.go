package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	v1 "github.com/ymahak/cust/internal/api/v1"
	"github.com/ymahak/cust/internal/api/ws"
	"github.com/ymahak/cust/internal/config"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/server/middleware"
	redisstore "github.com/ymahak/cust/internal/store/redis"
)

// Store is the part of the persistence layer the HTTP surface reads directly.
// *postgres.Store and *memory.Store satisfy it.
type Store interface {
	Pinger
	Users() domain.UserRepository
	Messages() domain.MessageRepository
}

// Deps are the services the routes are wired to. Redis, SlackInteractions
// and Tracer may be nil.
type Deps struct {
	Store       Store
	Auth        v1.AuthService
	Chat        v1.ChatService
	Escalations v1.EscalationService
	Traces      v1.TraceSource
	Metrics     v1.MetricsSource
	Feed        ws.Subscriber
	Redis       Pinger
	Tracer      trace.Tracer

	SlackInteractions http.Handler
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. ctx bounds the background
// sweepers of the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}

	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(deps.Tracer))
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	secret := cfg.JWT.Secret

	// /api/v1 is split into groups by who may call them. Each group gets its
	// own huma API; only the first one publishes the OpenAPI document.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(secret))
			registerAuthRoutes(humachi.New(r, apiConfig("Cust API", true)), deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(secret))
			r.Use(middleware.RateLimitByIP(ctx, cfg.Server.ChatRPS, cfg.Server.ChatBurst))
			registerChatRoutes(humachi.New(r, apiConfig("Cust Chat API", false)), deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(secret))
			registerUserRoutes(humachi.New(r, apiConfig("Cust User API", false)), deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(secret))
			r.Use(middleware.RequireReviewer())
			registerReviewerRoutes(humachi.New(r, apiConfig("Cust Review API", false)), deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(secret))
			r.Use(middleware.RequireAdmin())
			registerAdminRoutes(humachi.New(r, apiConfig("Cust Admin API", false)), deps)
		})
	})

	router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Auth(secret))
		r.Use(middleware.RequireReviewer())
		registerWSRoutes(r, ws.NewHub(deps.Feed, redisstore.EscalationChannel, originHosts(cfg.Server.CORSOrigins)))
	})

	if deps.SlackInteractions != nil {
		router.Method(http.MethodPost, "/slack/interactions", deps.SlackInteractions)
	}

	checks := map[string]Pinger{"database": deps.Store}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	router.Get("/healthz", healthHandler(checks))

	return s
}

// originHosts turns CORS origins into the host patterns websocket.Accept
// matches against.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func apiConfig(title string, withDocs bool) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{{URL: "/api/v1"}}
	if !withDocs {
		// No $schema links either, since nothing serves these schemas.
		c.OpenAPIPath = ""
		c.DocsPath = ""
		c.SchemasPath = ""
		c.CreateHooks = nil
	}
	return c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
