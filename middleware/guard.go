package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

const (
	DefaultSessionHeader = "X-Identity-Session"
	DefaultSessionCookie = "identity_session"
)

// Options selects where Resolve looks for a credential. The header wins
// over the cookie. With AllowJWT a bearer JWT is accepted when neither is
// present.
type Options struct {
	Header   string
	Cookie   string
	AllowJWT bool
}

type callerContextKey struct{}

// CallerFromContext returns the caller attached by one of the guards.
func CallerFromContext(ctx context.Context) (goIdentity.Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(goIdentity.Caller)
	return c, ok
}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c goIdentity.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

func Resolve(engine *goIdentity.Engine, opts Options) func(http.Handler) http.Handler {
	if opts.Header == "" {
		opts.Header = DefaultSessionHeader
	}
	if opts.Cookie == "" {
		opts.Cookie = DefaultSessionCookie
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			c, status := resolve(r, engine, opts)
			if status != 0 {
				http.Error(w, http.StatusText(status), status)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
		})
	}
}

func resolve(r *http.Request, engine *goIdentity.Engine, opts Options) (goIdentity.Caller, int) {
	meta := RequestMeta(r)

	credential := r.Header.Get(opts.Header)
	if credential == "" {
		if cookie, err := r.Cookie(opts.Cookie); err == nil {
			credential = cookie.Value
		}
	}

	if credential == "" && opts.AllowJWT {
		if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
			c, err := engine.VerifyJWT(r.Context(), raw, meta)
			if err != nil {
				return goIdentity.Guest(), http.StatusUnauthorized
			}
			return c, 0
		}
	}

	c, err := engine.ResolveCaller(r.Context(), credential, meta)
	if err != nil {
		return goIdentity.Guest(), http.StatusServiceUnavailable
	}
	return c, 0
}

// RequestMeta extracts the device information the engine records on
// sessions.
func RequestMeta(r *http.Request) goIdentity.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	locale := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(locale, ",;"); i >= 0 {
		locale = locale[:i]
	}

	return goIdentity.RequestMeta{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Locale:    strings.TrimSpace(locale),
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
