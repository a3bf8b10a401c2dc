package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/oauth2"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/token"
)

// CurrentSession is the session id alias for the caller's own session.
const CurrentSession = "current"

const sessionSecretLength = 128

// SessionResult is a newly created session. Secret and Credential are only
// available here; the store keeps a hash.
type SessionResult struct {
	Session    *store.Session
	Secret     string
	Credential string
}

type sessionSpec struct {
	provider     string
	providerUID  string
	factors      []string
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time
}

// createSession persists a session for u and evicts the oldest ones above
// the configured limit.
func (e *Engine) createSession(ctx context.Context, c Caller, u *store.User, spec sessionSpec) (*SessionResult, error) {
	secret, err := internal.NewSecret(sessionSecretLength)
	if err != nil {
		return nil, err
	}
	factors := spec.factors
	if len(factors) == 0 {
		factors = session.InitialFactors(spec.provider)
	}

	now := e.now()
	s := &store.Session{
		Meta:                      e.newMeta(permission.Owner(u.ID)),
		Device:                    e.detector.Detect(c.UserAgent),
		UserID:                    u.ID,
		Provider:                  spec.provider,
		ProviderUID:               spec.providerUID,
		ProviderAccessToken:       spec.accessToken,
		ProviderRefreshToken:      spec.refreshToken,
		ProviderAccessTokenExpiry: spec.tokenExpiry,
		Secret:                    internal.HashSecret(secret),
		Expire:                    now.Add(e.config.Session.Duration),
		Factors:                   slices.Compact(slices.Clone(factors)),
		IP:                        c.IP,
		UserAgent:                 c.UserAgent,
		CountryCode:               e.geo.CountryCode(c.IP),
	}
	if err := e.store.Sessions().Create(ctx, s); err != nil {
		return nil, translate(err, nil, nil)
	}
	e.evictSessions(ctx, u.ID, s.ID)

	e.metricInc(MetricSessionCreated)
	e.emit(ctx, EventSessionCreated, c, u.ID, s.ID, s.Redacted())

	out := s.Redacted()
	out.Current = true
	return &SessionResult{
		Session:    &out,
		Secret:     secret,
		Credential: session.Encode(u.ID, secret),
	}, nil
}

// evictSessions trims userID's sessions to the limit, never touching keep.
func (e *Engine) evictSessions(ctx context.Context, userID, keep string) {
	if e.config.Session.Limit <= 0 {
		return
	}
	sessions, err := e.store.Sessions().ListByUser(ctx, userID)
	if err != nil {
		e.logBestEffort("session eviction skipped", err, zap.String("user_id", userID))
		return
	}
	for _, old := range session.Overflow(sessions, e.config.Session.Limit, keep) {
		if _, err := e.store.Sessions().Delete(ctx, old.ID); err != nil {
			e.logBestEffort("session eviction failed", err, zap.String("session_id", old.ID))
			continue
		}
		e.metricInc(MetricSessionEvicted)
	}
}

// CreateEmailPasswordSession logs a user in with email and password. A
// legacy password digest is upgraded after a successful login.
func (e *Engine) CreateEmailPasswordSession(ctx context.Context, c Caller, email, pass string) (*SessionResult, error) {
	if !e.config.Auth.EmailPassword {
		return nil, ErrAuthMethodDisabled
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := e.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, translate(err, nil, nil)
	}
	if !e.verifyPassword(u, pass) {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if !u.Active() {
		return nil, ErrUserBlocked
	}
	e.upgradeHash(ctx, u, pass)

	return e.createSession(ctx, c, u, sessionSpec{
		provider:    session.ProviderEmail,
		providerUID: email,
	})
}

// CreateAnonymousSession creates a user without credentials and logs it in.
func (e *Engine) CreateAnonymousSession(ctx context.Context, c Caller) (*SessionResult, error) {
	if !e.config.Auth.Anonymous {
		return nil, ErrAuthMethodDisabled
	}
	if c.User != nil {
		return nil, ErrSessionAlreadyExists
	}
	u, err := e.createUser(ctx, c, newUser{enforceLimit: true})
	if err != nil {
		return nil, err
	}
	return e.createSession(ctx, c, u, sessionSpec{provider: session.ProviderAnonymous})
}

var sessionTokenTypes = map[string]struct {
	provider string
	factor   string
}{
	store.TokenMagicURL: {session.ProviderMagicURL, session.FactorEmail},
	store.TokenEmail:    {session.ProviderEmail, session.FactorEmail},
	store.TokenPhone:    {session.ProviderPhone, session.FactorPhone},
	store.TokenOAuth2:   {session.ProviderOAuth2, ""},
	store.TokenGeneric:  {session.ProviderToken, session.FactorToken},
}

// CreateSession exchanges a magic URL, email OTP, phone OTP, OAuth2 or
// generic token for a session. The token is deleted before the session is
// created; a failure afterwards requires a new token.
func (e *Engine) CreateSession(ctx context.Context, c Caller, userID, secret string) (*SessionResult, error) {
	u, err := e.store.Users().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricTokenRejected)
			return nil, ErrInvalidToken
		}
		return nil, translate(err, nil, nil)
	}

	candidates, err := e.store.Tokens().ListByUser(ctx, u.ID)
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	usable := candidates[:0:0]
	for _, t := range candidates {
		if _, ok := sessionTokenTypes[t.Type]; ok {
			usable = append(usable, t)
		}
	}
	tok := token.Verify(usable, "", secret, e.now())
	if tok == nil {
		e.metricInc(MetricTokenRejected)
		return nil, ErrInvalidToken
	}
	removed, err := e.store.Tokens().Delete(ctx, tok.ID)
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	if !removed {
		e.metricInc(MetricTokenRejected)
		return nil, ErrInvalidToken
	}
	e.metricInc(MetricTokenConsumed)

	if !u.Active() {
		return nil, ErrUserBlocked
	}

	kind := sessionTokenTypes[tok.Type]
	spec := sessionSpec{provider: kind.provider}
	if kind.factor != "" {
		spec.factors = []string{kind.factor}
	}

	switch tok.Type {
	case store.TokenMagicURL, store.TokenEmail:
		if !u.EmailVerification {
			u.EmailVerification = true
			if err := e.updateUser(ctx, u); err != nil {
				return nil, err
			}
		}
	case store.TokenPhone:
		if !u.PhoneVerification {
			u.PhoneVerification = true
			if err := e.updateUser(ctx, u); err != nil {
				return nil, err
			}
		}
	}

	return e.createSession(ctx, c, u, spec)
}

// ListSessions returns the caller's sessions with the current one flagged.
func (e *Engine) ListSessions(ctx context.Context, c Caller) ([]*store.Session, error) {
	if err := e.requireUser(c); err != nil {
		return nil, err
	}
	return e.listSessions(ctx, c, c.User.ID)
}

func (e *Engine) listSessions(ctx context.Context, c Caller, userID string) ([]*store.Session, error) {
	sessions, err := e.store.Sessions().ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	now := e.now()
	out := make([]*store.Session, 0, len(sessions))
	for _, s := range sessions {
		if session.Expired(s, now) || !e.allowed(c, s.Permissions, permission.Read) {
			continue
		}
		out = append(out, s)
	}
	if c.Secret != "" {
		session.MarkCurrent(out, c.Secret)
	} else if c.session != nil {
		for _, s := range out {
			s.Current = s.ID == c.session.ID
		}
	}
	for i, s := range out {
		r := s.Redacted()
		out[i] = &r
	}
	return out, nil
}

// ownSession loads id, resolving the "current" alias, and checks that c may
// perform action on it.
func (e *Engine) ownSession(ctx context.Context, c Caller, id, action string) (*store.Session, bool, error) {
	if err := e.requireUser(c); err != nil {
		return nil, false, err
	}
	currentID, err := e.currentSessionID(ctx, c)
	if id == CurrentSession {
		if err != nil {
			return nil, false, err
		}
		id = currentID
	}
	s, err := e.store.Sessions().Get(ctx, id)
	if err != nil {
		return nil, false, translate(err, ErrSessionNotFound, nil)
	}
	if s.UserID != c.User.ID || !e.allowed(c, s.Permissions, action) {
		return nil, false, ErrSessionNotFound
	}
	if session.Expired(s, e.now()) {
		return nil, false, ErrSessionNotFound
	}
	s.Current = s.ID == currentID
	return s, s.Current, nil
}

// GetSession returns one of the caller's sessions. id may be "current".
func (e *Engine) GetSession(ctx context.Context, c Caller, id string) (*store.Session, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	s, _, err := e.ownSession(ctx, c, id, permission.Read)
	if err != nil {
		return nil, err
	}
	out := s.Redacted()
	return &out, nil
}

// UpdateSession extends a session. An OAuth2 backed session whose provider
// access token is about to expire is refreshed through its provider first.
func (e *Engine) UpdateSession(ctx context.Context, c Caller, id string) (*store.Session, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	s, current, err := e.ownSession(ctx, c, id, permission.Update)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if s.ProviderRefreshToken != "" && !now.Add(e.config.Session.ProviderRefreshSkew).Before(s.ProviderAccessTokenExpiry) {
		if err := e.refreshProviderTokens(ctx, c, s); err != nil {
			return nil, err
		}
	}

	s.Expire = now.Add(e.config.Session.Duration)
	e.touch(&s.Meta)
	if err := e.store.Sessions().Update(ctx, s); err != nil {
		return nil, translate(err, ErrSessionNotFound, nil)
	}
	e.emit(ctx, EventSessionUpdated, c, s.UserID, s.ID, s.Redacted())

	out := s.Redacted()
	out.Current = current
	return &out, nil
}

func (e *Engine) refreshProviderTokens(ctx context.Context, c Caller, s *store.Session) error {
	p, err := e.providers.Get(s.Provider)
	if err != nil {
		return ErrProviderNotFound
	}
	toks, err := p.Refresh(ctx, s.ProviderRefreshToken)
	if err != nil {
		return fmt.Errorf("%w: provider refresh: %v", ErrInvalidToken, err)
	}
	applyProviderTokens(s, toks)

	ident, err := e.store.Identities().FindByProviderUID(ctx, s.Provider, s.ProviderUID)
	switch {
	case err == nil:
		ident.ProviderAccessToken = toks.AccessToken
		if toks.RefreshToken != "" {
			ident.ProviderRefreshToken = toks.RefreshToken
		}
		ident.ProviderAccessTokenExpiry = toks.Expiry
		e.touch(&ident.Meta)
		if err := e.store.Identities().Update(ctx, ident); err != nil {
			return translate(err, ErrIdentityNotFound, nil)
		}
		e.emit(ctx, EventIdentityUpdated, c, ident.UserID, ident.ID, ident.Redacted())
	case !errors.Is(err, store.ErrNotFound):
		return translate(err, nil, nil)
	}
	return nil
}

func applyProviderTokens(s *store.Session, toks *oauth2.Tokens) {
	s.ProviderAccessToken = toks.AccessToken
	if toks.RefreshToken != "" {
		s.ProviderRefreshToken = toks.RefreshToken
	}
	s.ProviderAccessTokenExpiry = toks.Expiry
}

// DeleteSession logs out one session. It reports whether that was the
// caller's current session, in which case the transport credential must be
// cleared too.
func (e *Engine) DeleteSession(ctx context.Context, c Caller, id string) (bool, error) {
	s, current, err := e.ownSession(ctx, c, id, permission.Delete)
	if err != nil {
		return false, err
	}
	removed, err := e.store.Sessions().Delete(ctx, s.ID)
	if err != nil {
		return false, translate(err, nil, nil)
	}
	if !removed {
		return false, ErrSessionNotFound
	}
	e.metricInc(MetricSessionDeleted)
	e.emit(ctx, EventSessionDeleted, c, s.UserID, s.ID, s.Redacted())
	return current, nil
}

// DeleteSessions logs the caller out everywhere.
func (e *Engine) DeleteSessions(ctx context.Context, c Caller) error {
	if err := e.requireUser(c); err != nil {
		return err
	}
	return e.deleteAllSessions(ctx, c, c.User.ID)
}

func (e *Engine) deleteAllSessions(ctx context.Context, c Caller, userID string) error {
	sessions, err := e.store.Sessions().ListByUser(ctx, userID)
	if err != nil {
		return translate(err, nil, nil)
	}
	for _, s := range sessions {
		removed, err := e.store.Sessions().Delete(ctx, s.ID)
		if err != nil {
			return translate(err, nil, nil)
		}
		if removed {
			e.metricInc(MetricSessionDeleted)
			e.emit(ctx, EventSessionDeleted, c, userID, s.ID, s.Redacted())
		}
	}
	return nil
}
