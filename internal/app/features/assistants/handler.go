// internal/app/features/assistants/handler.go
package assistants

import (
	"github.com/dalemusser/assistanthub/internal/app/services/publishing"
	"go.uber.org/zap"
)

// Handler is the feature-level entry point for Assistants.
type Handler struct {
	Svc publishing.Service
	Log *zap.Logger
}

// NewHandler constructs a new Assistants handler bound to the publication
// service and logger.
func NewHandler(svc publishing.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Svc: svc,
		Log: logger,
	}
}
