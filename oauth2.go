package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goIdentity/oauth2"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
)

// OAuth2Request configures a provider login.
type OAuth2Request struct {
	Success string
	Failure string
	// Token mode finishes with a single-use oauth2 token in the success
	// redirect instead of a session.
	Token  bool
	Scopes []string
}

// OAuth2Result is the outcome of a completed provider login. Exactly one of
// Session and Token is set.
type OAuth2Result struct {
	User     *store.User
	Session  *SessionResult
	Token    *TokenResult
	Redirect string
}

// CreateOAuth2URL returns the provider consent URL.
func (e *Engine) CreateOAuth2URL(ctx context.Context, c Caller, provider string, req OAuth2Request) (string, error) {
	p, err := e.providers.Get(provider)
	if err != nil {
		return "", ErrProviderNotFound
	}
	if _, err := parseRedirect(req.Success); err != nil {
		return "", err
	}
	if req.Failure != "" {
		if _, err := parseRedirect(req.Failure); err != nil {
			return "", err
		}
	}
	return p.LoginURL(oauth2.EncodeState(oauth2.State{
		Success: req.Success,
		Failure: req.Failure,
		Token:   req.Token,
		Scopes:  req.Scopes,
	})), nil
}

// CompleteOAuth2 handles the provider callback. The external subject is
// resolved to a user by identity, then by verified email, then a new user is
// registered. A caller that is already signed in links the identity to its
// own account.
func (e *Engine) CompleteOAuth2(ctx context.Context, c Caller, provider, code, rawState string) (*OAuth2Result, error) {
	p, err := e.providers.Get(provider)
	if err != nil {
		return nil, ErrProviderNotFound
	}
	state, err := oauth2.ParseState(rawState)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	success, err := parseRedirect(state.Success)
	if err != nil {
		return nil, err
	}

	toks, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s exchange: %v", ErrInvalidCredentials, provider, err)
	}
	profile, err := p.User(ctx, toks.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s profile: %v", ErrInvalidCredentials, provider, err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: %s returned no user id", ErrInvalidCredentials, provider)
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	ident, err := e.store.Identities().FindByProviderUID(ctx, provider, profile.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, translate(err, nil, nil)
		}
		ident = nil
	}

	u, err := e.resolveOAuth2User(ctx, c, ident, email, profile)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, ErrUserBlocked
	}
	if err := e.checkOAuth2Collision(ctx, u.ID, email); err != nil {
		return nil, err
	}

	if ident, err = e.saveIdentity(ctx, c, ident, u.ID, provider, profile.ID, email, toks); err != nil {
		return nil, err
	}
	if u.Email == "" && email != "" {
		u.Email = email
		u.EmailVerification = profile.EmailVerified
		if err := e.updateUser(ctx, u); err != nil {
			return nil, err
		}
		if err := e.syncTarget(ctx, c, u.ID, store.TargetEmail, "", email); err != nil {
			return nil, err
		}
		e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	}
	e.metricInc(MetricOAuth2Login)

	res := &OAuth2Result{User: redactedUser(u)}
	if state.Token {
		tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenOAuth2, false)
		if err != nil {
			return nil, err
		}
		res.Token = e.tokenResult(c, tok, secret)
		res.Redirect = withCredentials(success, u.ID, secret)
		return res, nil
	}

	sess, err := e.createSession(ctx, c, u, sessionSpec{
		provider:     provider,
		providerUID:  ident.ProviderUID,
		factors:      session.InitialFactors(session.ProviderOAuth2),
		accessToken:  toks.AccessToken,
		refreshToken: toks.RefreshToken,
		tokenExpiry:  toks.Expiry,
	})
	if err != nil {
		return nil, err
	}
	res.Session = sess
	res.Redirect = success.String()
	return res, nil
}

func (e *Engine) resolveOAuth2User(ctx context.Context, c Caller, ident *store.Identity, email string, profile *oauth2.Profile) (*store.User, error) {
	if c.User != nil {
		if ident != nil && ident.UserID != c.User.ID {
			e.metricInc(MetricOAuth2Conflict)
			return nil, ErrIdentityAlreadyExists
		}
		return e.userOf(ctx, c)
	}
	if ident != nil {
		return e.getUser(ctx, ident.UserID)
	}

	if email != "" {
		u, err := e.store.Users().FindByEmail(ctx, email)
		switch {
		case err == nil:
			if !profile.EmailVerified {
				e.metricInc(MetricOAuth2Conflict)
				return nil, ErrUserAlreadyExists
			}
			return u, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, translate(err, nil, nil)
		}

		linked, err := e.store.Identities().ListByProviderEmail(ctx, email)
		if err != nil {
			return nil, translate(err, nil, nil)
		}
		if len(linked) > 0 {
			if !profile.EmailVerified {
				e.metricInc(MetricOAuth2Conflict)
				return nil, ErrUserAlreadyExists
			}
			return e.getUser(ctx, linked[0].UserID)
		}
	}

	return e.createUser(ctx, c, newUser{
		email:         email,
		name:          profile.Name,
		emailVerified: email != "" && profile.EmailVerified,
		enforceLimit:  true,
	})
}

// checkOAuth2Collision rejects a provider email that belongs to another
// user, as a user email or through another identity.
func (e *Engine) checkOAuth2Collision(ctx context.Context, userID, email string) error {
	if email == "" {
		return nil
	}
	taken, err := e.emailTakenByIdentity(ctx, email, userID)
	if err != nil {
		return err
	}
	if !taken {
		owner, err := e.store.Users().FindByEmail(ctx, email)
		switch {
		case err == nil:
			taken = owner.ID != userID
		case !errors.Is(err, store.ErrNotFound):
			return translate(err, nil, nil)
		}
	}
	if taken {
		e.metricInc(MetricOAuth2Conflict)
		return ErrIdentityAlreadyExists
	}
	return nil
}

func (e *Engine) saveIdentity(ctx context.Context, c Caller, ident *store.Identity, userID, provider, providerUID, email string, toks *oauth2.Tokens) (*store.Identity, error) {
	if ident == nil {
		ident = &store.Identity{
			Meta:                      e.newMeta(permission.Owner(userID)),
			UserID:                    userID,
			Provider:                  provider,
			ProviderUID:               providerUID,
			ProviderEmail:             email,
			ProviderAccessToken:       toks.AccessToken,
			ProviderRefreshToken:      toks.RefreshToken,
			ProviderAccessTokenExpiry: toks.Expiry,
		}
		if err := e.store.Identities().Create(ctx, ident); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				e.metricInc(MetricOAuth2Conflict)
			}
			return nil, translate(err, nil, ErrIdentityAlreadyExists)
		}
		e.emit(ctx, EventIdentityCreated, c, userID, ident.ID, ident.Redacted())
		return ident, nil
	}

	ident.ProviderEmail = email
	ident.ProviderAccessToken = toks.AccessToken
	if toks.RefreshToken != "" {
		ident.ProviderRefreshToken = toks.RefreshToken
	}
	ident.ProviderAccessTokenExpiry = toks.Expiry
	e.touch(&ident.Meta)
	if err := e.store.Identities().Update(ctx, ident); err != nil {
		return nil, translate(err, ErrIdentityNotFound, ErrIdentityAlreadyExists)
	}
	e.emit(ctx, EventIdentityUpdated, c, userID, ident.ID, ident.Redacted())
	return ident, nil
}
