package authclient

import (
	"context"
	"net/http"

	"github.com/opsforge/gatehouse/pkg/httputil"
)

type contextKey string

const identityKey contextKey = "authclient_identity"

// FromContext returns the identity placed by the middleware, or nil.
func FromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// RequireAuth guards JSON API routes. Denied requests get a 403 without
// detail; the identity of allowed requests rides on the context.
func (c *Client) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := c.ValidateRequest(r)
		if err != nil {
			httputil.WriteForbidden(w, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthRedirect guards browser routes, sending denied requests to
// the authority's login page.
func (c *Client) RequireAuthRedirect(loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := c.ValidateRequest(r)
			if err != nil {
				http.Redirect(w, r, loginURL, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
