package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/store"
)

// ErrInvalid is returned when no live token matches a supplied secret. It does
// not distinguish expired from unknown secrets.
var ErrInvalid = errors.New("token: invalid or expired")

// Policy is the secret shape and lifetime for one token kind.
type Policy struct {
	Length  int
	TTL     time.Duration
	Numeric bool
}

// Policies holds the per-kind defaults.
type Policies map[string]Policy

// DefaultPolicies returns the built-in defaults. sessionDuration is used for
// OAuth2 exchange tokens.
func DefaultPolicies(sessionDuration time.Duration) Policies {
	return Policies{
		store.TokenMagicURL:     {Length: 64, TTL: time.Hour},
		store.TokenEmail:        {Length: 6, TTL: 15 * time.Minute, Numeric: true},
		store.TokenPhone:        {Length: 6, TTL: 15 * time.Minute, Numeric: true},
		store.TokenRecovery:     {Length: 256, TTL: time.Hour},
		store.TokenVerification: {Length: 256, TTL: time.Hour},
		store.TokenGeneric:      {Length: 6, TTL: 15 * time.Minute},
		store.TokenOAuth2:       {Length: 64, TTL: sessionDuration},
	}
}

// Request describes one token to issue. Zero Length/TTL fall back to the
// policy for Type.
type Request struct {
	UserID      string
	Type        string
	Length      int
	TTL         time.Duration
	Phrase      bool
	IP          string
	UserAgent   string
	Permissions []string
}

// Issuer creates and consumes tokens for one tenant.
type Issuer struct {
	tokens   store.Tokens
	policies Policies
	now      func() time.Time
}

// NewIssuer returns an issuer. A nil now uses time.Now.
func NewIssuer(tokens store.Tokens, policies Policies, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{tokens: tokens, policies: policies, now: now}
}

// Policy returns the effective policy for typ.
func (i *Issuer) Policy(typ string) Policy {
	return i.policies[typ]
}

// Issue persists a new token and returns it with the plaintext secret. The
// plaintext is never stored.
func (i *Issuer) Issue(ctx context.Context, req Request) (*store.Token, string, error) {
	p, ok := i.policies[req.Type]
	if !ok {
		return nil, "", fmt.Errorf("token: unknown type %q", req.Type)
	}
	if req.Length > 0 {
		p.Length = req.Length
	}
	if req.TTL > 0 {
		p.TTL = req.TTL
	}

	secret, err := generate(p)
	if err != nil {
		return nil, "", err
	}

	now := i.now()
	rec := &store.Token{
		Meta: store.Meta{
			ID:          uuid.NewString(),
			CreatedAt:   now,
			UpdatedAt:   now,
			Permissions: req.Permissions,
		},
		UserID:    req.UserID,
		Type:      req.Type,
		Secret:    internal.HashSecret(secret),
		Expire:    now.Add(p.TTL),
		IP:        req.IP,
		UserAgent: req.UserAgent,
	}
	if req.Phrase {
		rec.Phrase, err = NewPhrase()
		if err != nil {
			return nil, "", err
		}
	}

	if err := i.tokens.Create(ctx, rec); err != nil {
		return nil, "", err
	}
	return rec, secret, nil
}

// Consume finds the live token of userID matching secret, deletes it and
// returns it. typ filters by kind when non-empty. Losing a concurrent
// consumption race yields ErrInvalid.
func (i *Issuer) Consume(ctx context.Context, userID, typ, secret string) (*store.Token, error) {
	candidates, err := i.tokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tok := Verify(candidates, typ, secret, i.now())
	if tok == nil {
		return nil, ErrInvalid
	}
	removed, err := i.tokens.Delete(ctx, tok.ID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, ErrInvalid
	}
	return tok, nil
}

// Verify returns the first candidate whose hash matches secret, whose expiry
// is after now and whose type equals typ when typ is non-empty.
func Verify(candidates []*store.Token, typ, secret string, now time.Time) *store.Token {
	if secret == "" {
		return nil
	}
	for _, tok := range candidates {
		if tok == nil {
			continue
		}
		if typ != "" && tok.Type != typ {
			continue
		}
		if !now.Before(tok.Expire) {
			continue
		}
		if internal.SecretMatches(secret, tok.Secret) {
			return tok
		}
	}
	return nil
}

func generate(p Policy) (string, error) {
	if p.Numeric {
		return internal.NewOTP(p.Length)
	}
	return internal.NewSecret(p.Length)
}

// ValidOTP reports whether s looks like a numeric code of n digits.
func ValidOTP(s string, n int) bool {
	if len(s) != n {
		return false
	}
	return strings.Trim(s, "0123456789") == ""
}
