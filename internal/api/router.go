package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/neuroscan-be/internal/api/handlers"
	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/isdelr/neuroscan-be/internal/websocket"
)

// Options configures the router's transport concerns.
type Options struct {
	AllowedOrigins []string
	MaxUploadMB    int64
}

// Services bundles the business services the handlers delegate to.
type Services struct {
	Users    services.UserServiceProvider
	Reports  services.ReportServiceProvider
	Analysis services.AnalysisServiceProvider
	Chat     services.ChatServiceProvider
	Events   services.EventServiceProvider
	Stats    handlers.StatsSource
}

// NewRouter creates and configures a new Chi router.
func NewRouter(opts Options, svc Services, issuer *auth.Issuer, hub *websocket.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(svc.Analysis, opts.MaxUploadMB)
	chatHandler := handlers.NewChatHandler(svc.Chat)
	userHandler := handlers.NewUserHandler(svc.Users, svc.Events, issuer)
	reportHandler := handlers.NewReportHandler(svc.Reports)
	eventHandler := handlers.NewEventHandler(svc.Events)
	healthHandler := handlers.NewHealthHandler(svc.Stats, hub)
	demoHandler := handlers.NewDemoHandler(hub, svc.Analysis)

	r.Get("/health", healthHandler.Get)
	r.Get("/demo", demoHandler.Page)
	r.Get("/demo/ws", demoHandler.Serve)

	r.Post("/login", userHandler.Login)
	r.Post("/register", userHandler.Register)

	// Bearer tokens are optional; when present they bind the request to one user.
	r.Group(func(r chi.Router) {
		r.Use(issuer.Middleware())

		r.Post("/upload_image", analysisHandler.Upload)
		r.Post("/predict", chatHandler.Predict)
		r.Get("/reports", reportHandler.List)
		r.Get("/events", eventHandler.GetRecent)
	})

	return r
}
