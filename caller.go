package goIdentity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
)

// RequestMeta is the device information of an inbound request.
type RequestMeta struct {
	IP        string
	UserAgent string
	Locale    string
}

// Caller is the explicit authorization context of one request. It is a
// value: helpers that change it return a copy.
type Caller struct {
	// User is nil for guests.
	User *store.User
	// Secret is the plaintext session secret carried by the request.
	Secret string
	Roles  []string

	IP        string
	UserAgent string
	Locale    string

	session  *store.Session
	elevated bool
}

// Guest returns an unauthenticated caller.
func Guest() Caller {
	return Caller{Roles: permission.Roles("")}
}

// Server returns an elevated caller for users-service operations.
func Server() Caller {
	return Caller{Roles: []string{permission.RoleAny}, elevated: true}
}

// Elevated returns a copy of c that bypasses permission checks. The engine
// uses it for system-initiated writes made on behalf of c.
func (c Caller) Elevated() Caller {
	c.elevated = true
	return c
}

func (c Caller) IsElevated() bool { return c.elevated }

func (c Caller) IsGuest() bool { return c.User == nil }

// UserID returns the authenticated user id or "".
func (c Caller) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// Session returns the session the request authenticated with, if any.
func (c Caller) Session() *store.Session {
	return c.session
}

// WithMeta returns a copy of c carrying m.
func (c Caller) WithMeta(m RequestMeta) Caller {
	c.IP = m.IP
	c.UserAgent = m.UserAgent
	c.Locale = m.Locale
	return c
}

func (c Caller) actorID() string {
	if c.User != nil {
		return c.User.ID
	}
	if c.elevated {
		return "server"
	}
	return "guest"
}

// ResolveCaller turns a transport credential into a Caller. Malformed,
// unknown or expired credentials and blocked users yield a guest; only
// backend failures are returned as errors.
func (e *Engine) ResolveCaller(ctx context.Context, credential string, meta RequestMeta) (Caller, error) {
	if e == nil {
		return Caller{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricResolveLatency, time.Since(start)) }()

	guest := Guest().WithMeta(meta)
	if credential == "" {
		return guest, nil
	}
	userID, secret, err := session.Decode(credential)
	if err != nil {
		return guest, nil
	}

	user, err := e.store.Users().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return guest, nil
	}
	if err != nil {
		return guest, translate(err, nil, nil)
	}
	if !user.Active() {
		return guest, nil
	}

	sessions, err := e.store.Sessions().ListByUser(ctx, user.ID)
	if err != nil {
		return guest, translate(err, nil, nil)
	}
	currentID := session.FindCurrent(sessions, secret)
	var current *store.Session
	for _, s := range sessions {
		if s.ID == currentID {
			current = s
			break
		}
	}
	if current == nil || session.Expired(current, e.now()) {
		return guest, nil
	}

	return Caller{
		User:      user,
		Secret:    secret,
		Roles:     permission.Roles(user.ID),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Locale:    meta.Locale,
		session:   current,
	}, nil
}

// MFAPending reports whether c authenticated with fewer factors than its
// MFA setting demands.
func (e *Engine) MFAPending(ctx context.Context, c Caller) (bool, error) {
	if c.IsElevated() || c.User == nil || !c.User.MFA {
		return false, nil
	}
	if c.session != nil && len(c.session.Factors) >= 2 {
		return false, nil
	}
	factors, err := e.availableFactors(ctx, c.User)
	if err != nil {
		return false, err
	}
	return factors.TOTP || factors.Email || factors.Phone, nil
}

// requireFactors is the gate for account operations that are closed to a
// caller with a pending MFA challenge.
func (e *Engine) requireFactors(ctx context.Context, c Caller) error {
	if c.IsElevated() {
		return nil
	}
	if c.User == nil {
		return ErrUserRequired
	}
	pending, err := e.MFAPending(ctx, c)
	if err != nil {
		return err
	}
	if pending {
		return ErrMoreFactorsRequired
	}
	return nil
}

// requireUser admits any authenticated caller, including one with a pending
// MFA challenge.
func (e *Engine) requireUser(c Caller) error {
	if c.User == nil {
		return ErrUserRequired
	}
	return nil
}

// currentSessionID resolves the "current" alias for c.
func (e *Engine) currentSessionID(ctx context.Context, c Caller) (string, error) {
	if c.session != nil {
		return c.session.ID, nil
	}
	if c.User == nil || c.Secret == "" {
		return "", ErrSessionNotFound
	}
	sessions, err := e.store.Sessions().ListByUser(ctx, c.User.ID)
	if err != nil {
		return "", translate(err, nil, nil)
	}
	id := session.FindCurrent(sessions, c.Secret)
	if id == "" {
		return "", ErrSessionNotFound
	}
	return id, nil
}

func (e *Engine) logBestEffort(msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	e.logger.Warn(msg, append(fields, zap.Error(err))...)
}
