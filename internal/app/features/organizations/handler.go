// internal/app/features/organizations/handler.go
package organizations

import (
	"encoding/json"
	"net/http"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/auditlog"
	"github.com/dalemusser/assistanthub/internal/app/system/auth"
	"github.com/dalemusser/assistanthub/internal/app/system/authz"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler is the feature-level entry point for Organizations.
type Handler struct {
	DB    *mongo.Database
	Authz *authz.Resolver
	Audit *auditlog.Logger
	Log   *zap.Logger
}

// NewHandler constructs a new Organizations handler. audit may be nil.
func NewHandler(db *mongo.Database, az *authz.Resolver, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:    db,
		Authz: az,
		Audit: audit,
		Log:   logger,
	}
}

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r)
	}
	return p, ok
}

func orgID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid organization id.")
		return primitive.NilObjectID, false
	}
	return id, true
}
