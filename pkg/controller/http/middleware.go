package http

import (
	"context"
	"net/http"
)

// userHeader carries the authenticated user id resolved by the fronting
// proxy. Requests without it are rejected; this service never issues or
// validates credentials itself.
const userHeader = "X-Reverie-User"

type ctxUserIDKey struct{}

// userAuth extracts the user id header and stores it in the request
// context
func userAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserIDKey{}).(string); ok {
		return v
	}
	return ""
}
