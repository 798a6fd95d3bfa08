package middleware

import (
	"context"
	"net/http"

	"github.com/nexocrm/agentgate/internal/domain/authz"
)

type actorCtxKey struct{}

// Actor identifies the caller of a request, taken from trusted gateway
// headers. Role names not present in the role table resolve to the
// fallback role downstream, so an unknown X-Actor-Role fails closed
// rather than erroring here.
type Actor struct {
	UserID    string
	Role      authz.Role
	SessionID string
}

// ActorHeaders is HTTP middleware that extracts the caller identity from
// X-Actor-ID, X-Actor-Role and X-Session-ID. Requests without an actor ID
// or session ID are rejected with 401.
func ActorHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := Actor{
			UserID:    r.Header.Get("X-Actor-ID"),
			Role:      authz.Role(r.Header.Get("X-Actor-Role")),
			SessionID: r.Header.Get("X-Session-ID"),
		}
		if a.UserID == "" || a.SessionID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"X-Actor-ID and X-Session-ID headers are required"}`))
			return
		}

		ctx := context.WithValue(r.Context(), actorCtxKey{}, a)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the request actor, or a zero Actor when the
// middleware did not run.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorCtxKey{}).(Actor)
	return a
}
