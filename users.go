package goIdentity

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/token"
)

// CreateUserInput is a server side registration. Either Password or an
// imported PasswordHash with its algorithm may be set, not both.
type CreateUserInput struct {
	UserID   string
	Email    string
	Phone    string
	Name     string
	Password string

	PasswordHash string
	HashAlgo     string
	HashOptions  password.Options
}

// UserTokenInput sizes a generic login token. Zero values use the defaults.
type UserTokenInput struct {
	Length int
	TTL    time.Duration
}

// CreateUser registers a user without the registration toggles and limit.
func (e *Engine) CreateUser(ctx context.Context, c Caller, in CreateUserInput) (*store.User, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	if in.Password != "" && in.PasswordHash != "" {
		return nil, invalidInput("password and password hash are mutually exclusive")
	}
	if in.PasswordHash != "" && in.HashAlgo == "" {
		return nil, invalidInput("hash algorithm is required")
	}

	nu := newUser{
		id:          in.UserID,
		name:        strings.TrimSpace(in.Name),
		password:    in.Password,
		hash:        in.PasswordHash,
		hashAlgo:    in.HashAlgo,
		hashOptions: in.HashOptions,
	}
	var err error
	if in.Email != "" {
		if nu.email, err = normalizeEmail(in.Email); err != nil {
			return nil, err
		}
	}
	if in.Phone != "" {
		if nu.phone, err = normalizePhone(in.Phone); err != nil {
			return nil, err
		}
	}
	u, err := e.createUser(ctx, c, nu)
	if err != nil {
		return nil, err
	}
	return redactedUser(u), nil
}

// GetUser returns userID without secret fields.
func (e *Engine) GetUser(ctx context.Context, c Caller, userID string) (*store.User, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return redactedUser(u), nil
}

// DeleteUser removes a user and everything it owns. Dependent records go
// first so a failure leaves the user in place for a retry.
func (e *Engine) DeleteUser(ctx context.Context, c Caller, userID string) error {
	if err := e.requireElevated(c); err != nil {
		return err
	}
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := e.deleteAllSessions(ctx, c, u.ID); err != nil {
		return err
	}
	tokens, err := e.store.Tokens().ListByUser(ctx, u.ID)
	if err != nil {
		return translate(err, nil, nil)
	}
	for _, t := range tokens {
		if _, err := e.store.Tokens().Delete(ctx, t.ID); err != nil {
			return translate(err, nil, nil)
		}
	}
	challenges, err := e.store.Challenges().ListByUser(ctx, u.ID)
	if err != nil {
		return translate(err, nil, nil)
	}
	for _, ch := range challenges {
		if _, err := e.store.Challenges().Delete(ctx, ch.ID); err != nil {
			return translate(err, nil, nil)
		}
	}
	identities, err := e.store.Identities().ListByUser(ctx, u.ID)
	if err != nil {
		return translate(err, nil, nil)
	}
	for _, ident := range identities {
		if err := e.store.Identities().Delete(ctx, ident.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return translate(err, nil, nil)
		}
		e.emit(ctx, EventIdentityDeleted, c, u.ID, ident.ID, ident.Redacted())
	}
	targets, err := e.store.Targets().ListByUser(ctx, u.ID)
	if err != nil {
		return translate(err, nil, nil)
	}
	for _, t := range targets {
		if err := e.store.Targets().Delete(ctx, t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return translate(err, nil, nil)
		}
		e.emit(ctx, EventTargetDeleted, c, u.ID, t.ID, *t)
	}
	authenticators, err := e.store.Authenticators().ListByUser(ctx, u.ID)
	if err != nil {
		return translate(err, nil, nil)
	}
	for _, a := range authenticators {
		if err := e.store.Authenticators().Delete(ctx, a.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return translate(err, nil, nil)
		}
	}

	if err := e.store.Users().Delete(ctx, u.ID); err != nil {
		return translate(err, ErrUserNotFound, nil)
	}
	e.metricInc(MetricUserDeleted)
	e.emit(ctx, EventUserDeleted, c, u.ID, u.ID, u.Redacted())
	e.logger.Info("user deleted",
		zap.String("user_id", u.ID),
		zap.Int("tokens", len(tokens)),
		zap.Int("identities", len(identities)),
		zap.Int("targets", len(targets)),
	)
	return nil
}

// UpdateUserStatus activates or blocks a user. Blocking ends every session.
func (e *Engine) UpdateUserStatus(ctx context.Context, c Caller, userID string, status store.UserStatus) (*store.User, error) {
	if status != store.StatusActive && status != store.StatusBlocked {
		return nil, invalidInput("unknown status %q", status)
	}
	u, err := e.mutateUser(ctx, c, userID, func(u *store.User) error {
		u.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if status == store.StatusBlocked {
		if err := e.deleteAllSessions(ctx, c, userID); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// UpdateUserEmailVerification sets the email verified flag directly.
func (e *Engine) UpdateUserEmailVerification(ctx context.Context, c Caller, userID string, verified bool) (*store.User, error) {
	return e.mutateUser(ctx, c, userID, func(u *store.User) error {
		u.EmailVerification = verified
		return nil
	})
}

// UpdateUserPhoneVerification sets the phone verified flag directly.
func (e *Engine) UpdateUserPhoneVerification(ctx context.Context, c Caller, userID string, verified bool) (*store.User, error) {
	return e.mutateUser(ctx, c, userID, func(u *store.User) error {
		u.PhoneVerification = verified
		return nil
	})
}

// UpdateUserPassword sets a password under the same policy as self service.
func (e *Engine) UpdateUserPassword(ctx context.Context, c Caller, userID, newPassword string) (*store.User, error) {
	u, err := e.mutateUser(ctx, c, userID, func(u *store.User) error {
		if err := e.checkPassword(u, newPassword); err != nil {
			return err
		}
		return e.setPassword(u, newPassword)
	})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricPasswordChanged)
	return u, nil
}

// UpdateUserLabels replaces the labels. Labels are alphanumeric, at most 36
// characters, and deduplicated.
func (e *Engine) UpdateUserLabels(ctx context.Context, c Caller, userID string, labels []string) (*store.User, error) {
	clean := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" || len(l) > 36 || strings.Trim(l, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789") != "" {
			return nil, invalidInput("invalid label %q", l)
		}
		if !slices.Contains(clean, l) {
			clean = append(clean, l)
		}
	}
	return e.mutateUser(ctx, c, userID, func(u *store.User) error {
		u.Labels = clean
		return nil
	})
}

// UpdateUserMFA toggles whether logins for userID need a second factor.
func (e *Engine) UpdateUserMFA(ctx context.Context, c Caller, userID string, enabled bool) (*store.User, error) {
	return e.mutateUser(ctx, c, userID, func(u *store.User) error {
		u.MFA = enabled
		return nil
	})
}

func (e *Engine) mutateUser(ctx context.Context, c Caller, userID string, mutate func(*store.User) error) (*store.User, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := mutate(u); err != nil {
		return nil, err
	}
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	return redactedUser(u), nil
}

// ListUserSessions lists every live session of userID.
func (e *Engine) ListUserSessions(ctx context.Context, c Caller, userID string) ([]*store.Session, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	if _, err := e.getUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.listSessions(ctx, c, userID)
}

// CreateUserSession creates a server provider session for userID, for
// example to impersonate a user from a trusted backend.
func (e *Engine) CreateUserSession(ctx context.Context, c Caller, userID string) (*SessionResult, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, ErrUserBlocked
	}
	return e.createSession(ctx, c, u, sessionSpec{provider: session.ProviderServer})
}

// DeleteUserSessions ends every session of userID.
func (e *Engine) DeleteUserSessions(ctx context.Context, c Caller, userID string) error {
	if err := e.requireElevated(c); err != nil {
		return err
	}
	if _, err := e.getUser(ctx, userID); err != nil {
		return err
	}
	return e.deleteAllSessions(ctx, c, userID)
}

// DeleteUserSession removes one session of userID.
func (e *Engine) DeleteUserSession(ctx context.Context, c Caller, userID, sessionID string) error {
	if err := e.requireElevated(c); err != nil {
		return err
	}
	s, err := e.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return translate(err, ErrSessionNotFound, nil)
	}
	if s.UserID != userID {
		return ErrSessionNotFound
	}
	removed, err := e.store.Sessions().Delete(ctx, s.ID)
	if err != nil {
		return translate(err, nil, nil)
	}
	if removed {
		e.metricInc(MetricSessionDeleted)
		e.emit(ctx, EventSessionDeleted, c, userID, s.ID, s.Redacted())
	}
	return nil
}

// CreateUserToken issues a generic login token exchangeable through
// CreateSession. The secret is returned to the elevated caller.
func (e *Engine) CreateUserToken(ctx context.Context, c Caller, userID string, in UserTokenInput) (*TokenResult, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	if in.Length != 0 && (in.Length < 4 || in.Length > 128) {
		return nil, invalidInput("token length must be between 4 and 128")
	}
	if in.TTL < 0 {
		return nil, invalidInput("token ttl must be positive")
	}
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tok, secret, err := e.tokens.Issue(ctx, token.Request{
		UserID:      u.ID,
		Type:        store.TokenGeneric,
		Length:      in.Length,
		TTL:         in.TTL,
		IP:          c.IP,
		UserAgent:   c.UserAgent,
		Permissions: permission.Owner(u.ID),
	})
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	e.metricInc(MetricTokenIssued)
	e.emit(ctx, EventTokenCreated, c, u.ID, tok.ID, tok.Redacted())
	return e.tokenResult(c, tok, secret), nil
}

// ListUserIdentities lists userID's linked provider identities.
func (e *Engine) ListUserIdentities(ctx context.Context, c Caller, userID string) ([]*store.Identity, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	identities, err := e.store.Identities().ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	for i, ident := range identities {
		r := ident.Redacted()
		identities[i] = &r
	}
	return identities, nil
}

func (e *Engine) DeleteIdentity(ctx context.Context, c Caller, identityID string) error {
	if err := e.requireElevated(c); err != nil {
		return err
	}
	ident, err := e.store.Identities().Get(ctx, identityID)
	if err != nil {
		return translate(err, ErrIdentityNotFound, nil)
	}
	if err := e.store.Identities().Delete(ctx, ident.ID); err != nil {
		return translate(err, ErrIdentityNotFound, nil)
	}
	e.emit(ctx, EventIdentityDeleted, c, ident.UserID, ident.ID, ident.Redacted())
	return nil
}

func (e *Engine) DeleteUserMFAAuthenticator(ctx context.Context, c Caller, userID, typ string) error {
	if err := e.requireElevated(c); err != nil {
		return err
	}
	if _, err := e.getUser(ctx, userID); err != nil {
		return err
	}
	return e.deleteAuthenticator(ctx, c, userID, typ)
}
