// internal/app/features/assistants/helpers.go
package assistants

import (
	"encoding/json"
	"net/http"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/auth"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body, rejecting unknown fields and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// principal returns the caller or answers 401.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r)
	}
	return p, ok
}

// assistantID parses the {id} URL parameter or answers 400.
func assistantID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid assistant id.")
		return primitive.NilObjectID, false
	}
	return id, true
}
