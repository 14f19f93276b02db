package middleware

import (
	"net/http"

	"github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/pkg/logger"
)

// ActorContext resolves who is acting from the X-Actor-ID header stamped by
// the upstream gateway. Requests without one are audited as SYSTEM.
func ActorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-ID")
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := internal.ContextWithActor(r.Context(), actor)
		ctx = logger.With(ctx, "actor", actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
