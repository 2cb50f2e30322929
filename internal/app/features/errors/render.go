// internal/app/features/errors/render.go
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/assistanthub/internal/app/system/apperr"
	"github.com/dalemusser/assistanthub/internal/app/system/inputval"
	"go.uber.org/zap"
)

// RenderUnauthorized answers requests without a usable credential.
func RenderUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="assistanthub"`)
	WriteJSON(w, http.StatusUnauthorized, body{Error: "unauthorized", Message: "Sign in required."})
}

// RenderForbidden answers requests the caller may not perform.
func RenderForbidden(w http.ResponseWriter, r *http.Request, msg string) {
	WriteJSON(w, http.StatusForbidden, body{Error: "forbidden", Message: msg})
}

// RenderBadRequest answers malformed requests.
func RenderBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	WriteJSON(w, http.StatusBadRequest, body{Error: "bad_request", Message: msg})
}

// RenderNotFound answers requests for missing resources.
func RenderNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	WriteJSON(w, http.StatusNotFound, body{Error: "not_found", Message: msg})
}

// RenderUnavailable answers when a dependency the request needs is down.
func RenderUnavailable(w http.ResponseWriter, r *http.Request, msg string) {
	WriteJSON(w, http.StatusServiceUnavailable, body{Error: "unavailable", Message: msg})
}

// RenderTooManyRequests answers callers that exceeded a rate limit.
func RenderTooManyRequests(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusTooManyRequests, body{Error: "rate_limited", Message: "Too many requests. Please wait and try again."})
}

// RenderValidation answers with every field problem found.
func RenderValidation(w http.ResponseWriter, r *http.Request, res *inputval.Result) {
	b := body{Error: "validation", Message: res.First()}
	for _, fe := range res.Errors {
		b.Fields = append(b.Fields, fieldError{Field: fe.Field, Message: fe.Message})
	}
	WriteJSON(w, http.StatusBadRequest, b)
}

// RenderError maps a service error onto a response. Internal errors are
// logged and reported without detail.
func RenderError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	b := body{Error: kind.String(), Message: apperr.Message(err)}

	var ise *apperr.InconsistentStateError
	if stderrors.As(err, &ise) {
		retryable := ise.Retryable
		b.AssistantID = ise.AssistantID
		b.FailedStep = ise.FailedStep
		b.Completed = ise.Completed
		b.Retryable = &retryable
		b.ResumeToken = ise.ResumeToken
	}

	switch {
	case status >= 500 && kind == apperr.KindInternal:
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	case status >= 500:
		log.Warn("request failed", zap.String("path", r.URL.Path), zap.String("kind", kind.String()), zap.Error(err))
	}
	WriteJSON(w, status, b)
}
