// Package middleware provides HTTP middleware for CodeScope.
package middleware

import (
	"context"
	"net/http"
)

const headerActorID = "X-Actor-ID"

type actorCtxKey struct{}

// ActorID is middleware that extracts the acting user's ID from the
// X-Actor-ID header and stores it in the request context. Authentication
// happens upstream; by the time a request reaches the core the header is
// a trusted identity assertion. An absent header leaves the actor empty,
// which membership checks then reject.
func ActorID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(headerActorID)
		ctx := context.WithValue(r.Context(), actorCtxKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the acting user's ID stored in ctx, or "" if absent.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorCtxKey{}).(string); ok {
		return actor
	}
	return ""
}
