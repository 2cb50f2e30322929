// internal/app/features/assistants/resolve.go
package assistants

import (
	"context"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
)

// ServeResolve maps a chat routing key to its assistant when the caller may
// chat with it.
func (h *Handler) ServeResolve(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" || key == "null" {
		uierrors.RenderNotFound(w, r, "No assistant is published under this key.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	v, err := h.Svc.ResolveForChat(ctx, key, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}
