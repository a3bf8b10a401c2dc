package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	xoauth2 "golang.org/x/oauth2"
)

// GenericConfig describes a standards-following provider: authorization
// code flow plus a JSON userinfo endpoint.
type GenericConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string

	// Userinfo field names. Defaults follow OpenID Connect.
	IDField       string
	EmailField    string
	NameField     string
	VerifiedField string

	HTTPClient *http.Client
}

// Generic adapts any provider described by GenericConfig.
type Generic struct {
	cfg    GenericConfig
	oauth  xoauth2.Config
	client *http.Client
}

// NewGeneric returns an adapter for cfg.
func NewGeneric(cfg GenericConfig) (*Generic, error) {
	if cfg.Name == "" || cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, errors.New("oauth2: name, client id, auth, token and userinfo URLs are required")
	}
	if cfg.IDField == "" {
		cfg.IDField = "sub"
	}
	if cfg.EmailField == "" {
		cfg.EmailField = "email"
	}
	if cfg.NameField == "" {
		cfg.NameField = "name"
	}
	if cfg.VerifiedField == "" {
		cfg.VerifiedField = "email_verified"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Generic{
		cfg: cfg,
		oauth: xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: xoauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		client: client,
	}, nil
}

func (g *Generic) Name() string { return g.cfg.Name }

func (g *Generic) LoginURL(state string) string {
	return g.oauth.AuthCodeURL(state, xoauth2.AccessTypeOffline)
}

func (g *Generic) Exchange(ctx context.Context, code string) (*Tokens, error) {
	tok, err := g.oauth.Exchange(g.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("oauth2: exchange: %w", err)
	}
	return fromToken(tok), nil
}

func (g *Generic) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, errors.New("oauth2: no refresh token")
	}
	src := g.oauth.TokenSource(g.withClient(ctx), &xoauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth2: refresh: %w", err)
	}
	out := fromToken(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

func (g *Generic) User(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth2: userinfo status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	p := &Profile{
		ID:    stringField(payload[g.cfg.IDField]),
		Email: strings.ToLower(stringField(payload[g.cfg.EmailField])),
		Name:  stringField(payload[g.cfg.NameField]),
	}
	switch v := payload[g.cfg.VerifiedField].(type) {
	case bool:
		p.EmailVerified = v
	case string:
		p.EmailVerified = v == "true"
	}
	if p.ID == "" {
		return nil, errors.New("oauth2: userinfo without subject")
	}
	return p, nil
}

func (g *Generic) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, xoauth2.HTTPClient, g.client)
}

func fromToken(tok *xoauth2.Token) *Tokens {
	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// stringField renders string and numeric JSON ids alike.
func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
