package goIdentity

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/token"
)

// TokenResult is an issued token. Secret is only populated for elevated
// callers; everyone else receives it through the delivered message.
type TokenResult struct {
	Token  *store.Token
	Secret string
}

// MagicURLInput requests a magic URL login link.
type MagicURLInput struct {
	UserID string
	Email  string
	// URL is the page the link points to. userId and secret are appended.
	URL    string
	Phrase bool
}

// EmailTokenInput requests an email OTP login code.
type EmailTokenInput struct {
	UserID string
	Email  string
	Phrase bool
}

// PhoneTokenInput requests an SMS OTP login code.
type PhoneTokenInput struct {
	UserID string
	Phone  string
}

// CreateMagicURLToken mails a login link. Unknown addresses get a new user.
func (e *Engine) CreateMagicURLToken(ctx context.Context, c Caller, in MagicURLInput) (*TokenResult, error) {
	if !e.config.Auth.MagicURL {
		return nil, ErrAuthMethodDisabled
	}
	if !e.config.Messaging.EmailEnabled {
		return nil, ErrEmailDisabled
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	link, err := parseRedirect(in.URL)
	if err != nil {
		return nil, err
	}
	u, err := e.loginUser(ctx, c, in.UserID, store.TargetEmail, email)
	if err != nil {
		return nil, err
	}

	tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenMagicURL, in.Phrase)
	if err != nil {
		return nil, err
	}
	e.send(ctx, messaging.Message{
		Channel:   messaging.ChannelEmail,
		Recipient: email,
		Subject:   "Login",
		Template:  messaging.TemplateMagicSession,
		Variables: tokenVariables(u, tok, secret, withCredentials(link, u.ID, secret)),
	})
	return e.tokenResult(c, tok, secret), nil
}

// CreateEmailToken mails a numeric login code. Unknown addresses get a new
// user.
func (e *Engine) CreateEmailToken(ctx context.Context, c Caller, in EmailTokenInput) (*TokenResult, error) {
	if !e.config.Auth.EmailOTP {
		return nil, ErrAuthMethodDisabled
	}
	if !e.config.Messaging.EmailEnabled {
		return nil, ErrEmailDisabled
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	u, err := e.loginUser(ctx, c, in.UserID, store.TargetEmail, email)
	if err != nil {
		return nil, err
	}

	tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenEmail, in.Phrase)
	if err != nil {
		return nil, err
	}
	e.send(ctx, messaging.Message{
		Channel:   messaging.ChannelEmail,
		Recipient: email,
		Subject:   "Login code",
		Template:  messaging.TemplateOTPSession,
		Variables: tokenVariables(u, tok, secret, ""),
	})
	return e.tokenResult(c, tok, secret), nil
}

// CreatePhoneToken texts a numeric login code. Unknown numbers get a new
// user.
func (e *Engine) CreatePhoneToken(ctx context.Context, c Caller, in PhoneTokenInput) (*TokenResult, error) {
	if !e.config.Auth.Phone {
		return nil, ErrAuthMethodDisabled
	}
	if !e.config.Messaging.SMSEnabled {
		return nil, ErrPhoneDisabled
	}
	phone, err := normalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	u, err := e.loginUser(ctx, c, in.UserID, store.TargetSMS, phone)
	if err != nil {
		return nil, err
	}

	tok, secret, err := e.issueToken(ctx, c, u.ID, store.TokenPhone, false)
	if err != nil {
		return nil, err
	}
	e.send(ctx, messaging.Message{
		Channel:   messaging.ChannelSMS,
		Recipient: phone,
		Template:  messaging.TemplatePhoneCode,
		Body:      secret,
		Variables: tokenVariables(u, tok, secret, ""),
	})
	return e.tokenResult(c, tok, secret), nil
}

// loginUser finds the user owning address or registers one.
func (e *Engine) loginUser(ctx context.Context, c Caller, userID, kind, address string) (*store.User, error) {
	var (
		u   *store.User
		err error
	)
	if kind == store.TargetSMS {
		u, err = e.store.Users().FindByPhone(ctx, address)
	} else {
		u, err = e.store.Users().FindByEmail(ctx, address)
	}
	switch {
	case err == nil:
		if !u.Active() {
			return nil, ErrUserBlocked
		}
		return u, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, translate(err, nil, nil)
	}

	nu := newUser{id: userID, enforceLimit: true}
	if kind == store.TargetSMS {
		nu.phone = address
	} else {
		nu.email = address
	}
	return e.createUser(ctx, c, nu)
}

func (e *Engine) issueToken(ctx context.Context, c Caller, userID, typ string, phrase bool) (*store.Token, string, error) {
	tok, secret, err := e.tokens.Issue(ctx, token.Request{
		UserID:      userID,
		Type:        typ,
		Phrase:      phrase,
		IP:          c.IP,
		UserAgent:   c.UserAgent,
		Permissions: permission.Owner(userID),
	})
	if err != nil {
		return nil, "", translate(err, nil, nil)
	}
	e.metricInc(MetricTokenIssued)
	e.emit(ctx, EventTokenCreated, c, userID, tok.ID, tok.Redacted())
	return tok, secret, nil
}

func (e *Engine) tokenResult(c Caller, tok *store.Token, secret string) *TokenResult {
	out := tok.Redacted()
	res := &TokenResult{Token: &out}
	if c.IsElevated() {
		res.Secret = secret
	}
	return res
}

func tokenVariables(u *store.User, tok *store.Token, secret, link string) map[string]string {
	vars := map[string]string{
		"user":   u.Name,
		"userId": u.ID,
		"secret": secret,
		"expire": tok.Expire.UTC().Format(time.RFC3339),
	}
	if tok.Phrase != "" {
		vars["phrase"] = tok.Phrase
	}
	if link != "" {
		vars["redirect"] = link
	}
	return vars
}

// parseRedirect accepts absolute http(s) URLs only.
func parseRedirect(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, invalidInput("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalidInput("invalid url %q", raw)
	}
	return u, nil
}

func withCredentials(base *url.URL, userID, secret string) string {
	u := *base
	q := u.Query()
	q.Set("userId", userID)
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	return u.String()
}
