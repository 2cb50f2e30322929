// Package auth resolves bearer credentials to principals through the chat
// platform's user directory and carries the principal in the request context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/auditlog"
	"github.com/dalemusser/assistanthub/internal/app/system/cache"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"go.uber.org/zap"
)

type ctxKey string

const currentPrincipalKey ctxKey = "currentPrincipal"

// CurrentPrincipal returns the caller & "found?" flag.
func CurrentPrincipal(r *http.Request) (models.Principal, bool) {
	return FromContext(r.Context())
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(currentPrincipalKey).(models.Principal)
	return p, ok
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, currentPrincipalKey, p)
}

// Middleware loads the principal for each request.
type Middleware struct {
	Directory chatplatform.Directory
	Cache     *cache.PrincipalCache // optional
	Audit     *auditlog.Logger      // optional
	Log       *zap.Logger
}

// NewMiddleware constructs the auth middleware. cache and audit may be nil.
func NewMiddleware(dir chatplatform.Directory, c *cache.PrincipalCache, audit *auditlog.Logger, logger *zap.Logger) *Middleware {
	return &Middleware{Directory: dir, Cache: c, Audit: audit, Log: logger}
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// LoadPrincipal injects the principal into the context when the request
// carries a bearer credential. Requests without one pass through untouched;
// a rejected credential is answered with 401.
func (m *Middleware) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		if p, ok := m.Cache.Get(r.Context(), token); ok {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()

		u, err := m.Directory.ResolveToken(ctx, token)
		if err != nil {
			if errors.Is(err, chatplatform.ErrInvalidToken) {
				m.Audit.TokenRejected(r.Context(), r, "directory rejected token")
				uierrors.RenderUnauthorized(w, r)
				return
			}
			m.Log.Warn("user directory unavailable", zap.Error(err))
			uierrors.RenderUnavailable(w, r, "User directory unavailable.")
			return
		}

		p := models.Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: strings.ToLower(u.Role)}
		m.Cache.Set(r.Context(), token, p)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireSignedIn ensures there is a principal in context (set by LoadPrincipal).
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentPrincipal(r); !ok {
			uierrors.RenderUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
