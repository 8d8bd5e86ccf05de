package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/ymahak/cust/internal/api/v1"
	"github.com/ymahak/cust/internal/api/ws"
)

func registerAuthRoutes(api huma.API, deps Deps) {
	v1.RegisterAuthRoutes(api, deps.Auth)
}

func registerChatRoutes(api huma.API, deps Deps) {
	v1.RegisterChatRoutes(api, deps.Chat)
}

func registerUserRoutes(api huma.API, deps Deps) {
	v1.RegisterMeRoutes(api, deps.Auth)
	v1.RegisterHistoryRoutes(api, deps.Store.Messages())
}

func registerReviewerRoutes(api huma.API, deps Deps) {
	v1.RegisterHITLRoutes(api, deps.Escalations)
	v1.RegisterMonitoringRoutes(api, deps.Traces, deps.Metrics)
}

func registerAdminRoutes(api huma.API, deps Deps) {
	v1.RegisterMonitoringAdminRoutes(api, deps.Metrics)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/escalations", hub.ServeEscalations)
}
