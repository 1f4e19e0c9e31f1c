package testutil

import (
	"net/http"

	"curaledger/pkg/domain"
	"curaledger/pkg/requestcontext"
)

// AsActor is router middleware that authenticates every request as actor,
// standing in for RequireAuth in handler tests.
func AsActor(actor domain.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actor)))
		})
	}
}
