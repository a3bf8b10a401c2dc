package middleware

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// RequireJWT admits only requests carrying a valid bearer JWT. Session
// headers and cookies are ignored.
func RequireJWT(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			c, err := engine.VerifyJWT(r.Context(), raw, RequestMeta(r))
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
		})
	}
}
