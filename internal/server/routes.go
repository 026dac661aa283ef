package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Mihendy/pp-2025/internal/api"
)

// publicPrefixes lists paths that skip bearer-token authentication.
// The websocket and WOPI endpoints carry their credentials in the
// access_token query parameter and authenticate themselves.
var publicPrefixes = []string{
	"/api/v1/healthz",
	"/api/v1/auth/",
	"/api/v1/chats/ws/",
	"/wopi/",
	"/.well-known/acme-challenge/",
}

// IsAuthRequired reports whether a request path must present a bearer
// token.
func IsAuthRequired(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return strings.HasPrefix(path, "/api/v1/")
}

// setupRoutes builds the router with the full middleware stack.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/api/v1/healthz", api.HealthHandler)

	// Credential endpoints are rate limited per client IP.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(s.loginLimiter.Middleware).Post("/register", s.authHandler.Register)
		r.With(s.loginLimiter.Middleware).Post("/login", s.authHandler.Login)
		r.Post("/refresh", s.authHandler.Refresh)
	})

	r.Get("/api/v1/users/me", s.authHandler.Me)
	r.Get("/api/v1/users/{userId}", s.authHandler.GetUser)

	r.Route("/api/v1/groups", func(r chi.Router) {
		r.Post("/", s.groupsHandler.Create)
		r.Get("/", s.groupsHandler.ListMine)
		r.Get("/all", s.groupsHandler.ListAll)
		r.Get("/creator", s.groupsHandler.ListCreated)
		r.Get("/member", s.groupsHandler.ListJoined)
		r.Get("/{groupId}", s.groupsHandler.Get)
		r.Delete("/{groupId}", s.groupsHandler.Delete)
		r.Delete("/{groupId}/members/{userId}", s.groupsHandler.RemoveMember)
		r.Post("/{groupId}/invite", s.groupsHandler.Invite)
	})

	r.Route("/api/v1/invites", func(r chi.Router) {
		r.Get("/", s.groupsHandler.ListInvites)
		r.Post("/{inviteId}/respond", s.groupsHandler.Respond)
	})

	r.Route("/api/v1/chats", func(r chi.Router) {
		r.Post("/", s.chatHandler.Create)
		r.Get("/", s.chatHandler.ListMine)
		r.Get("/ws/{chatId}/{userId}", s.wsHandler.ServeHTTP)
		r.Get("/{chatId}", s.chatHandler.Get)
		r.Delete("/{chatId}", s.chatHandler.Delete)
		r.Post("/{chatId}/members", s.chatHandler.AddMember)
		r.Delete("/{chatId}/members/{userId}", s.chatHandler.RemoveMember)
		r.Get("/{chatId}/messages", s.chatHandler.History)
	})

	r.Route("/api/v1/files", func(r chi.Router) {
		r.Post("/", s.filesHandler.CreateFile)
		r.Get("/", s.filesHandler.ListFiles)
		r.Get("/edit", s.filesHandler.EditorSession)
		r.Get("/permissions", s.filesHandler.Permissions)
		r.Post("/permissions", s.filesHandler.Grant)
		r.Put("/permissions", s.filesHandler.Update)
		r.Delete("/permissions", s.filesHandler.Revoke)
	})

	// The bridge dispatches on the full request path itself.
	r.Handle("/wopi/files/*", s.bridge)

	return r
}
