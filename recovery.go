package goIdentity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/token"
)

// CreateRecovery mails a password reset link to the owner of email.
func (e *Engine) CreateRecovery(ctx context.Context, c Caller, email, redirect string) (*TokenResult, error) {
	if !e.config.Messaging.EmailEnabled {
		return nil, ErrEmailDisabled
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	link, err := parseRedirect(redirect)
	if err != nil {
		return nil, err
	}
	u, err := e.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, translate(err, ErrUserNotFound, nil)
	}
	if !u.Active() {
		return nil, ErrUserBlocked
	}

	tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenRecovery, false)
	if err != nil {
		return nil, err
	}
	e.send(ctx, messaging.Message{
		Channel:   messaging.ChannelEmail,
		Recipient: email,
		Subject:   "Password reset",
		Template:  messaging.TemplateRecovery,
		Variables: tokenVariables(u, tok, secret, withCredentials(link, u.ID, secret)),
	})
	e.emit(ctx, EventRecoveryCreated, c, u.ID, tok.ID, tok.Redacted())
	return e.tokenResult(c, tok, secret), nil
}

// UpdateRecovery resets the password with a recovery secret. The new
// password is checked before the token is spent.
func (e *Engine) UpdateRecovery(ctx context.Context, c Caller, userID, secret, newPassword string) (*store.User, error) {
	u, err := e.store.Users().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, translate(err, nil, nil)
	}
	if err := e.checkPassword(u, newPassword); err != nil {
		return nil, err
	}
	tok, err := e.consumeToken(ctx, u.ID, store.TokenRecovery, secret)
	if err != nil {
		return nil, err
	}

	if err := e.setPassword(u, newPassword); err != nil {
		return nil, err
	}
	u.EmailVerification = true
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	e.metricInc(MetricRecoveryCompleted)
	e.metricInc(MetricPasswordChanged)
	e.emit(ctx, EventRecoveryCompleted, c, u.ID, tok.ID, tok.Redacted())
	return redactedUser(u), nil
}

// CreateVerification mails an email verification link to the caller.
func (e *Engine) CreateVerification(ctx context.Context, c Caller, redirect string) (*TokenResult, error) {
	if !e.config.Messaging.EmailEnabled {
		return nil, ErrEmailDisabled
	}
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	link, err := parseRedirect(redirect)
	if err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if u.Email == "" {
		return nil, invalidInput("account has no email")
	}
	if u.EmailVerification {
		return nil, invalidInput("email already verified")
	}

	tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenVerification, false)
	if err != nil {
		return nil, err
	}
	e.send(ctx, messaging.Message{
		Channel:   messaging.ChannelEmail,
		Recipient: u.Email,
		Subject:   "Verify your email",
		Template:  messaging.TemplateVerification,
		Variables: tokenVariables(u, tok, secret, withCredentials(link, u.ID, secret)),
	})
	e.emit(ctx, EventVerificationCreated, c, u.ID, tok.ID, tok.Redacted())
	return e.tokenResult(c, tok, secret), nil
}

// UpdateVerification marks the email verified.
func (e *Engine) UpdateVerification(ctx context.Context, c Caller, userID, secret string) (*store.User, error) {
	return e.completeVerification(ctx, c, userID, store.TokenVerification, secret, func(u *store.User) {
		u.EmailVerification = true
	})
}

// CreatePhoneVerification texts a verification code to the caller's phone.
func (e *Engine) CreatePhoneVerification(ctx context.Context, c Caller) (*TokenResult, error) {
	if !e.config.Messaging.SMSEnabled {
		return nil, ErrPhoneDisabled
	}
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if u.Phone == "" {
		return nil, invalidInput("account has no phone")
	}
	if u.PhoneVerification {
		return nil, invalidInput("phone already verified")
	}

	tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenPhone, false)
	if err != nil {
		return nil, err
	}
	e.send(ctx, messaging.Message{
		Channel:   messaging.ChannelSMS,
		Recipient: u.Phone,
		Template:  messaging.TemplatePhoneCode,
		Body:      secret,
		Variables: tokenVariables(u, tok, secret, ""),
	})
	e.emit(ctx, EventVerificationCreated, c, u.ID, tok.ID, tok.Redacted())
	return e.tokenResult(c, tok, secret), nil
}

// UpdatePhoneVerification marks the phone verified.
func (e *Engine) UpdatePhoneVerification(ctx context.Context, c Caller, userID, secret string) (*store.User, error) {
	return e.completeVerification(ctx, c, userID, store.TokenPhone, secret, func(u *store.User) {
		u.PhoneVerification = true
	})
}

func (e *Engine) completeVerification(ctx context.Context, c Caller, userID, typ, secret string, apply func(*store.User)) (*store.User, error) {
	u, err := e.store.Users().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, translate(err, nil, nil)
	}
	tok, err := e.consumeToken(ctx, u.ID, typ, secret)
	if err != nil {
		return nil, err
	}
	apply(u)
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	e.metricInc(MetricVerificationCompleted)
	e.emit(ctx, EventVerificationCompleted, c, u.ID, tok.ID, tok.Redacted())
	return redactedUser(u), nil
}

// consumeToken spends the token of typ matching secret.
func (e *Engine) consumeToken(ctx context.Context, userID, typ, secret string) (*store.Token, error) {
	tok, err := e.tokens.Consume(ctx, userID, typ, secret)
	if err != nil {
		if errors.Is(err, token.ErrInvalid) {
			e.metricInc(MetricTokenRejected)
			return nil, ErrInvalidToken
		}
		return nil, translate(err, nil, nil)
	}
	e.metricInc(MetricTokenConsumed)
	return tok, nil
}

// CreateJWT mints a short lived JWT for the caller's current session.
func (e *Engine) CreateJWT(ctx context.Context, c Caller) (string, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return "", err
	}
	sessionID, err := e.currentSessionID(ctx, c)
	if err != nil {
		return "", err
	}
	return e.jwt.Create(c.User.ID, sessionID)
}

// VerifyJWT resolves a JWT minted by CreateJWT to the caller of the session
// it names.
func (e *Engine) VerifyJWT(ctx context.Context, raw string, meta RequestMeta) (Caller, error) {
	guest := Guest().WithMeta(meta)
	claims, err := e.jwt.Parse(raw)
	if err != nil {
		return guest, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u, err := e.store.Users().Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return guest, ErrInvalidToken
		}
		return guest, translate(err, nil, nil)
	}
	if !u.Active() {
		return guest, ErrUserBlocked
	}
	s, err := e.store.Sessions().Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return guest, ErrInvalidToken
		}
		return guest, translate(err, nil, nil)
	}
	if s.UserID != u.ID || session.Expired(s, e.now()) {
		return guest, ErrInvalidToken
	}
	return Caller{
		User:      u,
		Roles:     permission.Roles(u.ID),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Locale:    meta.Locale,
		session:   s,
	}, nil
}
