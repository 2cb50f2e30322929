// internal/app/features/organizations/routes.go
package organizations

import (
	"github.com/dalemusser/assistanthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts all Organization routes under the base path
// (typically "/api/organizations" from bootstrap). Role checks happen in
// the handlers because they depend on the organization addressed.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	// System admins only.
	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)

	// Members see their organization; admins also see the signup key.
	r.Get("/{slug}", h.ServeView)

	// Organization admins.
	r.Put("/{id}/signup", h.HandleSignup)
	r.Put("/{id}/config", h.HandleConfig)
	r.Get("/{id}/roles", h.ServeRoles)
	r.Post("/{id}/roles", h.HandleAssignRole)
	r.Get("/{id}/events", h.ServeEvents)

	return r
}

// SignupRoutes mounts the public signup-key lookup (typically "/api/signup").
func SignupRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{key}", h.ServeSignup)
	return r
}
