package store

import (
	"slices"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

// Meta holds the fields every stored record shares.
type Meta struct {
	ID          string    `json:"$id"`
	CreatedAt   time.Time `json:"$createdAt"`
	UpdatedAt   time.Time `json:"$updatedAt"`
	Permissions []string  `json:"$permissions,omitempty"`

	// Revision is maintained by the store and used for optimistic updates.
	Revision int64 `json:"-"`
}

// Metadata exposes the shared fields to generic store implementations.
func (m *Meta) Metadata() *Meta {
	return m
}

// UserStatus is the lifecycle state of a user.
type UserStatus string

const (
	StatusActive  UserStatus = "active"
	StatusBlocked UserStatus = "blocked"
)

// User is the identity record.
type User struct {
	Meta

	Name              string           `json:"name"`
	Email             string           `json:"email,omitempty"`
	Phone             string           `json:"phone,omitempty"`
	EmailVerification bool             `json:"emailVerification"`
	PhoneVerification bool             `json:"phoneVerification"`
	Password          string           `json:"password,omitempty"`
	PasswordHistory   []string         `json:"passwordHistory,omitempty"`
	PasswordUpdate    time.Time        `json:"passwordUpdate"`
	Hash              string           `json:"hash,omitempty"`
	HashOptions       password.Options `json:"hashOptions"`
	MFA               bool             `json:"mfa"`
	MFARecoveryCodes  []string         `json:"mfaRecoveryCodes,omitempty"`
	Status            UserStatus       `json:"status"`
	Labels            []string         `json:"labels,omitempty"`
	Registration      time.Time        `json:"registration"`
	AccessedAt        time.Time        `json:"accessedAt"`

	// Prefs is schemaless by contract.
	Prefs map[string]any `json:"prefs,omitempty"`
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status != StatusBlocked
}

// Redacted returns a copy without password material or recovery codes.
func (u User) Redacted() User {
	u.Password = ""
	u.PasswordHistory = nil
	u.MFARecoveryCodes = nil
	u.HashOptions = password.Options{}
	return u
}

// Provider types a target can belong to.
const (
	TargetEmail = "email"
	TargetSMS   = "sms"
	TargetPush  = "push"
)

// Target is a contact channel owned by exactly one user.
type Target struct {
	Meta

	UserID       string `json:"userId"`
	ProviderType string `json:"providerType"`
	Identifier   string `json:"identifier"`
	ProviderID   string `json:"providerId,omitempty"`
	Name         string `json:"name,omitempty"`
	Expired      bool   `json:"expired"`
}

// Device is the user-agent derived metadata attached to a session.
type Device struct {
	OSCode              string `json:"osCode,omitempty"`
	OSName              string `json:"osName,omitempty"`
	OSVersion           string `json:"osVersion,omitempty"`
	ClientType          string `json:"clientType,omitempty"`
	ClientCode          string `json:"clientCode,omitempty"`
	ClientName          string `json:"clientName,omitempty"`
	ClientVersion       string `json:"clientVersion,omitempty"`
	ClientEngine        string `json:"clientEngine,omitempty"`
	ClientEngineVersion string `json:"clientEngineVersion,omitempty"`
	DeviceName          string `json:"deviceName,omitempty"`
	DeviceBrand         string `json:"deviceBrand,omitempty"`
	DeviceModel         string `json:"deviceModel,omitempty"`
}

// Session is an authenticated login instance. Secret holds the hash of the
// session secret, never the plaintext.
type Session struct {
	Meta
	Device

	UserID                    string    `json:"userId"`
	Provider                  string    `json:"provider"`
	ProviderUID               string    `json:"providerUid,omitempty"`
	ProviderAccessToken       string    `json:"providerAccessToken,omitempty"`
	ProviderRefreshToken      string    `json:"providerRefreshToken,omitempty"`
	ProviderAccessTokenExpiry time.Time `json:"providerAccessTokenExpiry"`
	Secret                    string    `json:"secret"`
	Expire                    time.Time `json:"expire"`
	Factors                   []string  `json:"factors,omitempty"`
	MFAUpdatedAt              time.Time `json:"mfaUpdatedAt"`
	IP                        string    `json:"ip,omitempty"`
	UserAgent                 string    `json:"userAgent,omitempty"`
	CountryCode               string    `json:"countryCode,omitempty"`

	// Current is computed per request and never persisted.
	Current bool `json:"-"`
}

// HasFactor reports whether factor was satisfied on this session.
func (s *Session) HasFactor(factor string) bool {
	return slices.Contains(s.Factors, factor)
}

// Redacted returns a copy without the secret hash or provider tokens.
func (s Session) Redacted() Session {
	s.Secret = ""
	s.ProviderAccessToken = ""
	s.ProviderRefreshToken = ""
	return s
}

// Token types.
const (
	TokenMagicURL     = "magic-url"
	TokenEmail        = "email"
	TokenPhone        = "phone"
	TokenRecovery     = "recovery"
	TokenVerification = "verification"
	TokenGeneric      = "generic"
	TokenOAuth2       = "oauth2"
)

// Token is a single-use secret. Secret holds the hash of the plaintext.
type Token struct {
	Meta

	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Secret    string    `json:"secret"`
	Expire    time.Time `json:"expire"`
	Phrase    string    `json:"phrase,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// Redacted returns a copy without the secret hash.
func (t Token) Redacted() Token {
	t.Secret = ""
	return t
}

// Identity binds a user to an external OAuth2 subject.
type Identity struct {
	Meta

	UserID                    string    `json:"userId"`
	Provider                  string    `json:"provider"`
	ProviderUID               string    `json:"providerUid"`
	ProviderEmail             string    `json:"providerEmail,omitempty"`
	ProviderAccessToken       string    `json:"providerAccessToken,omitempty"`
	ProviderRefreshToken      string    `json:"providerRefreshToken,omitempty"`
	ProviderAccessTokenExpiry time.Time `json:"providerAccessTokenExpiry"`
}

// Redacted returns a copy without provider tokens.
func (i Identity) Redacted() Identity {
	i.ProviderAccessToken = ""
	i.ProviderRefreshToken = ""
	return i
}

// Challenge is a transient MFA verification attempt. Code holds the hash of
// the delivered one-time code for email and phone challenges.
type Challenge struct {
	Meta

	UserID string    `json:"userId"`
	Type   string    `json:"type"`
	Code   string    `json:"code,omitempty"`
	Expire time.Time `json:"expire"`
}

// Redacted returns a copy without the code hash.
func (c Challenge) Redacted() Challenge {
	c.Code = ""
	return c
}

// AuthenticatorData holds method specific material.
type AuthenticatorData struct {
	Secret string `json:"secret,omitempty"`
	// LastCounter is the time step of the last accepted TOTP code.
	LastCounter int64 `json:"lastCounter,omitempty"`
}

// Authenticator is a registered MFA method.
type Authenticator struct {
	Meta

	UserID   string            `json:"userId"`
	Type     string            `json:"type"`
	Verified bool              `json:"verified"`
	Data     AuthenticatorData `json:"data"`
}

// Redacted returns a copy without the seed.
func (a Authenticator) Redacted() Authenticator {
	a.Data = AuthenticatorData{}
	return a
}
