package oauth2

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrUnknownProvider is returned when a provider name is not registered.
var ErrUnknownProvider = errors.New("oauth2: unknown provider")

// Tokens are the credentials returned by a code exchange or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Profile is the provider's view of the user.
type Profile struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
}

// Provider is the adapter contract.
type Provider interface {
	Name() string
	// LoginURL returns the consent URL carrying state.
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	User(ctx context.Context, accessToken string) (*Profile, error)
}

// Registry maps provider names to adapters. It is built once and read-only.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers providers under their Name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter registered as name.
func (r *Registry) Get(name string) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	return nil, ErrUnknownProvider
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
