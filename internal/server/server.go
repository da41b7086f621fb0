package server

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/session"
	"github.com/graphdesk/server/internal/llm"
	"github.com/graphdesk/server/internal/store"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Graph   *store.Graph
	Catalog *catalog.Catalog
	Gen     llm.Generator
	Session session.Deps
	Auth    AuthConfig
}

// NewRouter assembles the full route tree: public auth endpoints, the
// websocket chat endpoint, and the role-gated agent dashboard.
func NewRouter(deps Deps) (*chi.Mux, error) {
	auth, err := newAuthHandler(deps.Graph, deps.Auth)
	if err != nil {
		return nil, err
	}
	chat := &chatHandler{auth: auth, deps: deps.Session}
	dashboard := &dashboardHandler{graph: deps.Graph, cat: deps.Catalog, gen: deps.Gen}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", auth.login)
		r.Post("/signup", auth.signup)
	})

	// The browser websocket API cannot set headers, so the chat endpoint
	// takes its token as a query parameter and validates it after upgrade.
	r.Get("/ws/chat", chat.ServeHTTP)

	r.Route("/api/dashboard", func(r chi.Router) {
		r.Use(auth.requireAuth)
		r.Use(requireRole(store.RoleAgent))

		r.Get("/tickets", dashboard.listTickets)
		r.Post("/tickets/{ticketID}/resolve", dashboard.resolveTicket)
		r.Get("/escalations", dashboard.listEscalations)

		r.Get("/suggestions", dashboard.listSuggestions)
		r.Post("/suggestions/{suggestionID}/approve", dashboard.approveSuggestion)
		r.Put("/suggestions/{suggestionID}", dashboard.updateSuggestion)
		r.Delete("/suggestions/{suggestionID}", dashboard.rejectSuggestion)

		r.Get("/intents", dashboard.listIntents)
		r.Put("/intents/{intentName}", dashboard.updateIntent)
		r.Delete("/intents/{intentName}", dashboard.deleteIntent)
	})

	return r, nil
}
