package password

import (
	"errors"
	"fmt"
)

// Algorithm tags stored next to each digest.
const (
	AlgoArgon2 = "argon2"
	AlgoBcrypt = "bcrypt"
	AlgoScrypt = "scrypt"
	AlgoSHA    = "sha"
	AlgoMD5    = "md5"
)

// DefaultMaxPasswordBytes caps the plaintext accepted by Hash and Verify.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrUnsupportedAlgorithm is returned for an unknown algorithm tag.
	ErrUnsupportedAlgorithm = errors.New("password: unsupported algorithm")
	// ErrMalformedDigest is returned when a stored digest cannot be parsed.
	ErrMalformedDigest = errors.New("password: malformed digest")
	// ErrTooLong is returned when the plaintext exceeds DefaultMaxPasswordBytes.
	ErrTooLong = errors.New("password: too long")
)

// Options carries the algorithm tag and its parameters. It is persisted with
// the user record, so every field is optional and algorithm specific.
type Options struct {
	Type string `json:"type,omitempty"`

	// argon2
	MemoryCost uint32 `json:"memoryCost,omitempty"`
	TimeCost   uint32 `json:"timeCost,omitempty"`
	Threads    uint8  `json:"threads,omitempty"`

	// bcrypt
	Cost int `json:"cost,omitempty"`

	// scrypt
	Salt         string `json:"salt,omitempty"`
	CostCPU      int    `json:"costCpu,omitempty"`
	CostMemory   int    `json:"costMemory,omitempty"`
	CostParallel int    `json:"costParallel,omitempty"`
	Length       int    `json:"length,omitempty"`

	// sha
	Version string `json:"version,omitempty"`
}

// DefaultOptions returns the argon2id parameters used for new digests.
func DefaultOptions() Options {
	return Options{
		Type:       AlgoArgon2,
		MemoryCost: 19456,
		TimeCost:   2,
		Threads:    1,
	}
}

// Hasher hashes and verifies passwords for one algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// New returns the hasher for algo configured with opts.
func New(algo string, opts Options) (Hasher, error) {
	switch algo {
	case AlgoArgon2, "":
		return NewArgon2(Config{
			Memory:      opts.MemoryCost,
			Time:        opts.TimeCost,
			Parallelism: opts.Threads,
			SaltLength:  16,
			KeyLength:   32,
		})
	case AlgoBcrypt:
		return newBcrypt(opts.Cost), nil
	case AlgoScrypt:
		return newScrypt(opts)
	case AlgoSHA:
		return newSHA(opts.Version)
	case AlgoMD5:
		return md5Hasher{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algo)
	}
}

// Hash hashes password with algo.
func Hash(password, algo string, opts Options) (string, error) {
	h, err := New(algo, opts)
	if err != nil {
		return "", err
	}
	return h.Hash(password)
}

// Verify reports whether password matches digest produced by algo.
func Verify(password, digest, algo string, opts Options) (bool, error) {
	if digest == "" {
		return false, nil
	}
	h, err := New(algo, opts)
	if err != nil {
		return false, err
	}
	return h.Verify(password, digest)
}

// NeedsUpgrade reports whether a digest stored with algo should be rewritten
// with the current default algorithm and parameters.
func NeedsUpgrade(digest, algo string, current Options) bool {
	if algo != AlgoArgon2 && algo != "" {
		return true
	}
	a, err := NewArgon2(Config{
		Memory:      current.MemoryCost,
		Time:        current.TimeCost,
		Parallelism: current.Threads,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return false
	}
	upgrade, err := a.NeedsUpgrade(digest)
	return err == nil && upgrade
}

func checkLength(password string) error {
	if len(password) > DefaultMaxPasswordBytes {
		return ErrTooLong
	}
	return nil
}
