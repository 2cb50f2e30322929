// internal/app/features/assistants/routes.go
package assistants

import (
	"github.com/dalemusser/assistanthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the assistant API under the base path
// (typically "/api/assistants" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)

	// Registered before /{id} so "resume" is not taken for an id.
	r.Post("/resume", h.HandleResume)

	r.Get("/{id}", h.ServeGet)
	r.Patch("/{id}", h.HandleUpdate)
	r.Get("/{id}/history", h.ServeHistory)

	r.Post("/{id}/publish", h.HandlePublish)
	r.Post("/{id}/unpublish", h.HandleUnpublish)
	r.Delete("/{id}/publication", h.HandleRemovePublication)

	r.Delete("/{id}", h.HandleSoftDelete)
	r.Delete("/{id}/purge", h.HandlePurge)

	return r
}

// ChatRoutes mounts routing-key resolution (typically under "/api/routes").
func ChatRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/{key}", h.ServeResolve)
	return r
}
