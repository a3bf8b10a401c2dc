// Package totp implements RFC 6238 time-based one-time passwords used by
// goIdentity authenticators.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var (
	// ErrEmptySecret is returned when verifying against an empty seed.
	ErrEmptySecret = errors.New("totp: empty secret")
	// ErrUnsupportedAlgorithm is returned for algorithms other than SHA1/256/512.
	ErrUnsupportedAlgorithm = errors.New("totp: unsupported algorithm")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code shape and the accepted clock drift.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of adjacent time steps accepted on each side.
	Skew int
}

// DefaultConfig returns 6 digit SHA1 codes with a 30s period and one step of
// drift, which is what common authenticator apps expect.
func DefaultConfig() Config {
	return Config{
		Issuer:    "goIdentity",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	}
}

// Manager generates seeds and verifies codes.
type Manager struct {
	config Config
}

// New returns a manager. Zero fields fall back to DefaultConfig.
func New(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	return &Manager{config: cfg}
}

// GenerateSecret returns a fresh seed in base32 without padding.
func (m *Manager) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisionURI returns the otpauth:// URI an authenticator app scans.
func (m *Manager) ProvisionURI(secret, account string) string {
	issuer := m.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(m.config.Period))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("algorithm", strings.ToUpper(m.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Code returns the code for the time step containing now.
func (m *Manager) Code(secret string, now time.Time) (string, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(raw, now.Unix()/int64(m.config.Period), m.config.Digits, m.config.Algorithm)
}

// Verify reports whether code matches the current or an adjacent time step.
func (m *Manager) Verify(secret, code string, now time.Time) (bool, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return false, err
	}
	ok, _, err := m.VerifyCode(raw, code, now)
	return ok, err
}

// VerifyAfter is Verify with replay protection: a code whose time step is
// not after last is rejected. It returns the matched step.
func (m *Manager) VerifyAfter(secret, code string, now time.Time, last int64) (int64, bool, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return 0, false, err
	}
	ok, counter, err := m.VerifyCode(raw, code, now)
	if err != nil || !ok || counter <= last {
		return 0, false, err
	}
	return counter, true, nil
}

// VerifyCode checks code against a raw seed and returns the matching counter.
func (m *Manager) VerifyCode(secret []byte, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}

	if len(secret) == 0 {
		return false, 0, ErrEmptySecret
	}

	baseCounter := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}

	return false, 0, nil
}

// DecodeSecret accepts base32 with or without padding, in any case.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
	if s == "" {
		return nil, ErrEmptySecret
	}
	return b32.DecodeString(s)
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
