// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// body is the JSON shape of every error response.
type body struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// Set for publication flows that stopped part way.
	AssistantID string   `json:"assistant_id,omitempty"`
	FailedStep  string   `json:"failed_step,omitempty"`
	Completed   []string `json:"completed_steps,omitempty"`
	Retryable   *bool    `json:"retryable,omitempty"`
	ResumeToken string   `json:"resume_token,omitempty"`

	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler serves the router-level fallbacks.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// NotFound answers unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	RenderNotFound(w, r, "No such endpoint.")
}

// MethodNotAllowed answers known routes called with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusMethodNotAllowed, body{Error: "method_not_allowed", Message: "Method not allowed."})
}

// Mount installs the fallbacks on r.
func Mount(r chi.Router, h *Handler) {
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)
}
