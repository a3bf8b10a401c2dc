package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	ErrMissingKid = errors.New("jwt: missing kid")
	ErrUnknownKid = errors.New("jwt: unknown kid")
)

// Config controls account JWT minting. PrivateKey is the HMAC secret for
// HS256 or the ed25519 private key (raw or PEM). VerifyKeys, when set, maps
// kid to the key that verifies tokens carrying it; KeyID is stamped on every
// token this manager signs.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager mints and parses account JWTs.
type Manager struct {
	ttl    time.Duration
	kid    string
	now    func() time.Time
	method jwt.SigningMethod
	sign   any
	// verify holds keys by kid. Without a key set it has one entry, under
	// KeyID (or "" when tokens carry no kid).
	verify map[string]any
	parser *jwt.Parser

	issuer   string
	audience string
}

// AccountClaims binds a JWT to one user session.
type AccountClaims struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// NewManager resolves the keys in cfg once and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	}

	m := &Manager{
		ttl:      cfg.TTL,
		kid:      strings.TrimSpace(cfg.KeyID),
		now:      cfg.Now,
		verify:   make(map[string]any),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}
	if m.now == nil {
		m.now = time.Now
	}

	var toVerifyKey func([]byte) (any, error)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: hs256 requires a secret")
		}
		m.method = jwt.SigningMethodHS256
		m.sign = cfg.PrivateKey
		toVerifyKey = func(b []byte) (any, error) { return b, nil }
		if len(cfg.VerifyKeys) == 0 {
			m.verify[m.kid] = cfg.PrivateKey
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := edPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.sign = priv
		}
		toVerifyKey = func(b []byte) (any, error) { return edPublicKey(b) }
		if len(cfg.VerifyKeys) == 0 {
			if len(cfg.PublicKey) == 0 {
				return nil, errors.New("jwt: ed25519 requires a public key or verify key set")
			}
			pub, err := edPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify[m.kid] = pub
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("jwt: verify key set contains an empty kid")
		}
		key, err := toVerifyKey(raw)
		if err != nil {
			return nil, fmt.Errorf("jwt: verify key %q: %w", kid, err)
		}
		m.verify[kid] = key
	}
	if m.kid != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := m.verify[m.kid]; !ok {
			return nil, errors.New("jwt: KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// Create signs a JWT for sessionID of userID, valid for the configured TTL.
func (m *Manager) Create(userID, sessionID string) (string, error) {
	if m.sign == nil {
		return "", errors.New("jwt: manager has no signing key")
	}
	now := m.now()
	claims := AccountClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	return token.SignedString(m.sign)
}

// Parse validates raw and returns its claims. Tokens without a user or
// session id are rejected.
func (m *Manager) Parse(raw string) (*AccountClaims, error) {
	claims := &AccountClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if key, ok := m.verify[kid]; ok {
		return key, nil
	}
	if kid == "" {
		return nil, ErrMissingKid
	}
	return nil, ErrUnknownKid
}

func edPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return key, nil
}

func edPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return key, nil
}
