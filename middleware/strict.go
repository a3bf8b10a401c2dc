package middleware

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// RequireUser resolves the caller like Resolve and then rejects guests with
// 401 and callers that still owe an MFA challenge with 403.
func RequireUser(engine *goIdentity.Engine, opts Options) func(http.Handler) http.Handler {
	resolveMW := Resolve(engine, opts)

	return func(next http.Handler) http.Handler {
		gate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := CallerFromContext(r.Context())
			if !ok || c.IsGuest() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			pending, err := engine.MFAPending(r.Context(), c)
			if err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			if pending {
				http.Error(w, "more factors required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		return resolveMW(gate)
	}
}
