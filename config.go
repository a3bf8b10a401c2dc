package goIdentity

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/goIdentity/password"
)

// Config is the per-tenant engine configuration. Every field can be set
// from GOIDENTITY_* variables with LoadConfigFromEnv.
type Config struct {
	Store     StoreConfig
	Session   SessionConfig
	Password  PasswordConfig
	Auth      AuthConfig
	Messaging MessagingConfig
	Tokens    TokenConfig
	MFA       MFAConfig
	JWT       JWTConfig
	Events    EventsConfig
	Metrics   MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig isolates one tenant inside a shared Redis.
type StoreConfig struct {
	Prefix string `env:"GOIDENTITY_STORE_PREFIX" envDefault:"gid"`
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	Duration time.Duration `env:"GOIDENTITY_SESSION_DURATION" envDefault:"8760h"`
	// Limit caps live sessions per user; the oldest are evicted. 0 disables.
	Limit int `env:"GOIDENTITY_SESSION_LIMIT" envDefault:"10"`
	// ProviderRefreshSkew refreshes an OAuth2 access token this long before
	// it expires when a session is updated.
	ProviderRefreshSkew time.Duration `env:"GOIDENTITY_SESSION_PROVIDER_REFRESH_SKEW" envDefault:"1m"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	MinLength         int  `env:"GOIDENTITY_PASSWORD_MIN_LENGTH" envDefault:"8"`
	HistoryLimit      int  `env:"GOIDENTITY_PASSWORD_HISTORY" envDefault:"0"`
	PersonalDataCheck bool `env:"GOIDENTITY_PASSWORD_PERSONAL_DATA_CHECK" envDefault:"false"`

	// argon2id parameters for new digests.
	MemoryCost uint32 `env:"GOIDENTITY_PASSWORD_ARGON2_MEMORY" envDefault:"19456"`
	TimeCost   uint32 `env:"GOIDENTITY_PASSWORD_ARGON2_TIME" envDefault:"2"`
	Threads    uint8  `env:"GOIDENTITY_PASSWORD_ARGON2_THREADS" envDefault:"1"`
}

// Options returns the hashing options stored with new digests.
func (c PasswordConfig) Options() password.Options {
	return password.Options{
		Type:       password.AlgoArgon2,
		MemoryCost: c.MemoryCost,
		TimeCost:   c.TimeCost,
		Threads:    c.Threads,
	}
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig toggles login methods.
type AuthConfig struct {
	EmailPassword bool `env:"GOIDENTITY_AUTH_EMAIL_PASSWORD" envDefault:"true"`
	Anonymous     bool `env:"GOIDENTITY_AUTH_ANONYMOUS" envDefault:"true"`
	MagicURL      bool `env:"GOIDENTITY_AUTH_MAGIC_URL" envDefault:"true"`
	EmailOTP      bool `env:"GOIDENTITY_AUTH_EMAIL_OTP" envDefault:"true"`
	Phone         bool `env:"GOIDENTITY_AUTH_PHONE" envDefault:"true"`
	// UserLimit caps registrations. 0 means unlimited.
	UserLimit int `env:"GOIDENTITY_AUTH_USER_LIMIT" envDefault:"0"`
}

/*
====================================
MESSAGING CONFIG
====================================
*/

type MessagingConfig struct {
	EmailEnabled bool `env:"GOIDENTITY_MESSAGING_EMAIL" envDefault:"true"`
	SMSEnabled   bool `env:"GOIDENTITY_MESSAGING_SMS" envDefault:"true"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig overrides the default lifetimes of issued tokens.
type TokenConfig struct {
	MagicURLTTL     time.Duration `env:"GOIDENTITY_TOKEN_MAGIC_URL_TTL" envDefault:"1h"`
	OTPTTL          time.Duration `env:"GOIDENTITY_TOKEN_OTP_TTL" envDefault:"15m"`
	RecoveryTTL     time.Duration `env:"GOIDENTITY_TOKEN_RECOVERY_TTL" envDefault:"1h"`
	VerificationTTL time.Duration `env:"GOIDENTITY_TOKEN_VERIFICATION_TTL" envDefault:"1h"`
	OTPLength       int           `env:"GOIDENTITY_TOKEN_OTP_LENGTH" envDefault:"6"`
}

/*
====================================
MFA CONFIG
====================================
*/

type MFAConfig struct {
	Issuer             string        `env:"GOIDENTITY_MFA_ISSUER" envDefault:"goIdentity"`
	ChallengeTTL       time.Duration `env:"GOIDENTITY_MFA_CHALLENGE_TTL" envDefault:"5m"`
	CodeLength         int           `env:"GOIDENTITY_MFA_CODE_LENGTH" envDefault:"6"`
	RecoveryCodeCount  int           `env:"GOIDENTITY_MFA_RECOVERY_CODES" envDefault:"10"`
	RecoveryCodeLength int           `env:"GOIDENTITY_MFA_RECOVERY_CODE_LENGTH" envDefault:"10"`
	TOTPDigits         int           `env:"GOIDENTITY_MFA_TOTP_DIGITS" envDefault:"6"`
	TOTPPeriod         int           `env:"GOIDENTITY_MFA_TOTP_PERIOD" envDefault:"30"`
	TOTPAlgorithm      string        `env:"GOIDENTITY_MFA_TOTP_ALGORITHM" envDefault:"SHA1"`
	TOTPSkew           int           `env:"GOIDENTITY_MFA_TOTP_SKEW" envDefault:"1"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls CreateJWT. Secret is the HS256 key; PrivateKey and
// PublicKey are used for ed25519 and are never read from the environment.
type JWTConfig struct {
	TTL           time.Duration `env:"GOIDENTITY_JWT_TTL" envDefault:"15m"`
	SigningMethod string        `env:"GOIDENTITY_JWT_SIGNING_METHOD" envDefault:"hs256"`
	Secret        string        `env:"GOIDENTITY_JWT_SECRET"`
	Issuer        string        `env:"GOIDENTITY_JWT_ISSUER"`
	PrivateKey    []byte
	PublicKey     []byte
}

/*
====================================
EVENTS / METRICS CONFIG
====================================
*/

type EventsConfig struct {
	Enabled    bool `env:"GOIDENTITY_EVENTS_ENABLED" envDefault:"true"`
	BufferSize int  `env:"GOIDENTITY_EVENTS_BUFFER" envDefault:"1024"`
	DropIfFull bool `env:"GOIDENTITY_EVENTS_DROP_IF_FULL" envDefault:"true"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"GOIDENTITY_METRICS_ENABLED" envDefault:"false"`
	EnableLatencyHistograms bool `env:"GOIDENTITY_METRICS_LATENCY" envDefault:"false"`
}

/*
====================================
DEFAULTS / LOADING
====================================
*/

// DefaultConfig returns the same values LoadConfigFromEnv yields with an
// empty environment.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Prefix: "gid"},
		Session: SessionConfig{
			Duration:            365 * 24 * time.Hour,
			Limit:               10,
			ProviderRefreshSkew: time.Minute,
		},
		Password: PasswordConfig{
			MinLength:  8,
			MemoryCost: 19456,
			TimeCost:   2,
			Threads:    1,
		},
		Auth: AuthConfig{
			EmailPassword: true,
			Anonymous:     true,
			MagicURL:      true,
			EmailOTP:      true,
			Phone:         true,
		},
		Messaging: MessagingConfig{EmailEnabled: true, SMSEnabled: true},
		Tokens: TokenConfig{
			MagicURLTTL:     time.Hour,
			OTPTTL:          15 * time.Minute,
			RecoveryTTL:     time.Hour,
			VerificationTTL: time.Hour,
			OTPLength:       6,
		},
		MFA: MFAConfig{
			Issuer:             "goIdentity",
			ChallengeTTL:       5 * time.Minute,
			CodeLength:         6,
			RecoveryCodeCount:  10,
			RecoveryCodeLength: 10,
			TOTPDigits:         6,
			TOTPPeriod:         30,
			TOTPAlgorithm:      "SHA1",
			TOTPSkew:           1,
		},
		JWT: JWTConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "hs256",
		},
		Events:  EventsConfig{Enabled: true, BufferSize: 1024, DropIfFull: true},
		Metrics: MetricsConfig{},
	}
}

// LoadConfigFromEnv reads GOIDENTITY_* variables and validates the result.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Store.Prefix == "" {
		return errors.New("Store.Prefix must not be empty")
	}

	if c.Session.Duration <= 0 {
		return errors.New("Session.Duration must be > 0")
	}
	if c.Session.Limit < 0 {
		return errors.New("Session.Limit must be >= 0")
	}
	if c.Session.ProviderRefreshSkew < 0 {
		return errors.New("Session.ProviderRefreshSkew must be >= 0")
	}

	if c.Password.MinLength < 1 || c.Password.MinLength > password.DefaultMaxPasswordBytes {
		return fmt.Errorf("Password.MinLength must be in [1,%d]", password.DefaultMaxPasswordBytes)
	}
	if c.Password.HistoryLimit < 0 || c.Password.HistoryLimit > 20 {
		return errors.New("Password.HistoryLimit must be in [0,20]")
	}
	if _, err := password.New(password.AlgoArgon2, c.Password.Options()); err != nil {
		return fmt.Errorf("Password argon2 parameters: %w", err)
	}

	if c.Auth.UserLimit < 0 {
		return errors.New("Auth.UserLimit must be >= 0")
	}

	if c.Tokens.MagicURLTTL <= 0 || c.Tokens.OTPTTL <= 0 ||
		c.Tokens.RecoveryTTL <= 0 || c.Tokens.VerificationTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}
	if c.Tokens.OTPLength < 4 || c.Tokens.OTPLength > 10 {
		return errors.New("Tokens.OTPLength must be in [4,10]")
	}

	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("MFA.ChallengeTTL must be > 0")
	}
	if c.MFA.CodeLength < 4 || c.MFA.CodeLength > 10 {
		return errors.New("MFA.CodeLength must be in [4,10]")
	}
	if c.MFA.RecoveryCodeCount < 1 || c.MFA.RecoveryCodeCount > 64 {
		return errors.New("MFA.RecoveryCodeCount must be in [1,64]")
	}
	if c.MFA.RecoveryCodeLength < 8 || c.MFA.RecoveryCodeLength > 64 {
		return errors.New("MFA.RecoveryCodeLength must be in [8,64]")
	}
	if c.MFA.TOTPDigits != 6 && c.MFA.TOTPDigits != 8 {
		return errors.New("MFA.TOTPDigits must be 6 or 8")
	}
	if c.MFA.TOTPPeriod <= 0 {
		return errors.New("MFA.TOTPPeriod must be > 0")
	}
	if c.MFA.TOTPSkew < 0 || c.MFA.TOTPSkew > 3 {
		return errors.New("MFA.TOTPSkew must be in [0,3]")
	}
	switch c.MFA.TOTPAlgorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("MFA.TOTPAlgorithm must be SHA1, SHA256 or SHA512")
	}

	if c.JWT.TTL <= 0 {
		return errors.New("JWT.TTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("JWT ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("JWT.SigningMethod must be hs256 or ed25519")
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events.BufferSize must be > 0 when events are enabled")
	}
	return nil
}
