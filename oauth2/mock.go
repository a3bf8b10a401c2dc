package oauth2

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Mock is an in-process provider. Codes map to profiles registered with
// AddUser; it is used by the smoke command and tests.
type Mock struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	profiles map[string]Profile
	byToken  map[string]string
}

// NewMock returns a provider called name whose access tokens live for ttl.
func NewMock(name string, ttl time.Duration, now func() time.Time) *Mock {
	if now == nil {
		now = time.Now
	}
	return &Mock{
		name:     name,
		ttl:      ttl,
		now:      now,
		profiles: make(map[string]Profile),
		byToken:  make(map[string]string),
	}
}

// AddUser makes code exchangeable for p.
func (m *Mock) AddUser(code string, p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[code] = p
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) LoginURL(state string) string {
	return "https://" + m.name + ".invalid/authorize?state=" + url.QueryEscape(state)
}

func (m *Mock) Exchange(_ context.Context, code string) (*Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[code]; !ok {
		return nil, errors.New("oauth2: unknown code")
	}
	access := "access-" + code + "-" + m.now().Format(time.RFC3339Nano)
	m.byToken[access] = code
	return &Tokens{
		AccessToken:  access,
		RefreshToken: "refresh-" + code,
		Expiry:       m.now().Add(m.ttl),
	}, nil
}

func (m *Mock) Refresh(_ context.Context, refreshToken string) (*Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := strings.CutPrefix(refreshToken, "refresh-")
	if !ok || m.profiles[code].ID == "" {
		return nil, errors.New("oauth2: unknown refresh token")
	}
	access := "access-" + code + "-" + m.now().Format(time.RFC3339Nano)
	m.byToken[access] = code
	return &Tokens{AccessToken: access, RefreshToken: refreshToken, Expiry: m.now().Add(m.ttl)}, nil
}

func (m *Mock) User(_ context.Context, accessToken string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.byToken[accessToken]
	if !ok {
		return nil, errors.New("oauth2: unknown access token")
	}
	p := m.profiles[code]
	return &p, nil
}
