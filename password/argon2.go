package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Prefix = "$argon2id$"

	minMemoryKB   uint32 = 8
	minSaltLength uint32 = 8
	minKeyLength  uint32 = 16
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time == 0:
		return errors.New("password time must be >= 1")
	case c.Parallelism == 0:
		return errors.New("password parallelism must be >= 1")
	case c.Memory < 8*uint32(c.Parallelism):
		return errors.New("password memory must be >= 8 KB per thread")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes passwords with argon2id and encodes them as PHC strings.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key digest.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDigest, fmt.Sprintf(format, args...))
}

func parsePHC(digest string) (phc, error) {
	var p phc
	if !strings.HasPrefix(digest, argon2Prefix) {
		return p, malformed("not argon2id")
	}
	parts := strings.Split(strings.TrimPrefix(digest, argon2Prefix), "$")
	if len(parts) != 4 {
		return p, malformed("want 4 PHC sections, got %d", len(parts))
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil {
		return p, malformed("version %q", parts[0])
	}
	if version != argon2.Version {
		return p, malformed("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return p, malformed("parameters %q", parts[1])
	}
	if p.memory < minMemoryKB || p.time == 0 || p.parallelism == 0 {
		return p, malformed("parameters out of range")
	}

	var err error
	if p.salt, err = decodeB64(parts[2]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return p, malformed("salt")
	}
	if p.key, err = decodeB64(parts[3]); err != nil || len(p.key) == 0 {
		return p, malformed("key")
	}
	return p, nil
}

// decodeB64 accepts padded and unpadded standard base64, since imported
// digests use either.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Hash returns a PHC encoded argon2id digest of password.
func (a *Argon2) Hash(password string) (string, error) {
	// Raw string bytes are hashed exactly as provided (no Unicode normalization).
	if err := checkLength(password); err != nil {
		return "", err
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		key:         make([]byte, a.config.KeyLength),
	}
	if _, err := io.ReadFull(rand.Reader, p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify recomputes the key with the parameters embedded in digest and
// compares in constant time.
func (a *Argon2) Verify(password, digest string) (bool, error) {
	if err := checkLength(password); err != nil {
		return false, err
	}
	p, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsUpgrade reports whether digest was produced with weaker parameters
// than the receiver's.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	p, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength
	return weaker, nil
}
