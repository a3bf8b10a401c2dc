package password

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

type bcryptHasher struct {
	cost int
}

func newBcrypt(cost int) bcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcryptHasher{cost: cost}
}

func (b bcryptHasher) Hash(password string) (string, error) {
	if err := checkLength(password); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b bcryptHasher) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
}

// scryptHasher verifies hex encoded scrypt keys. The salt is part of the
// options, not the digest, which matches how these hashes are exported.
type scryptHasher struct {
	salt               []byte
	n, r, p, keyLength int
}

func newScrypt(opts Options) (scryptHasher, error) {
	s := scryptHasher{
		salt:      []byte(opts.Salt),
		n:         opts.CostCPU,
		r:         opts.CostMemory,
		p:         opts.CostParallel,
		keyLength: opts.Length,
	}
	if s.n == 0 {
		s.n = 16384
	}
	if s.r == 0 {
		s.r = 8
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.keyLength == 0 {
		s.keyLength = 64
	}
	if len(s.salt) == 0 {
		return s, errors.New("password: scrypt requires a salt")
	}
	return s, nil
}

func (s scryptHasher) Hash(password string) (string, error) {
	if err := checkLength(password); err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(password), s.salt, s.n, s.r, s.p, s.keyLength)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func (s scryptHasher) Verify(password, digest string) (bool, error) {
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
	got, err := scrypt.Key([]byte(password), s.salt, s.n, s.r, s.p, len(want))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// digestHasher covers unsalted legacy digests (sha family, md5).
type digestHasher struct {
	newHash func() hash.Hash
}

func newSHA(version string) (digestHasher, error) {
	switch version {
	case "sha1":
		return digestHasher{sha1.New}, nil
	case "sha224":
		return digestHasher{sha256.New224}, nil
	case "sha256", "":
		return digestHasher{sha256.New}, nil
	case "sha384":
		return digestHasher{sha512.New384}, nil
	case "sha512":
		return digestHasher{sha512.New}, nil
	default:
		return digestHasher{}, fmt.Errorf("%w: sha version %q", ErrUnsupportedAlgorithm, version)
	}
}

func (d digestHasher) Hash(password string) (string, error) {
	if err := checkLength(password); err != nil {
		return "", err
	}
	h := d.newHash()
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (d digestHasher) Verify(password, digest string) (bool, error) {
	got, err := d.Hash(password)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1, nil
}

type md5Hasher struct{}

func (md5Hasher) Hash(password string) (string, error) {
	return digestHasher{md5.New}.Hash(password)
}

func (md5Hasher) Verify(password, digest string) (bool, error) {
	return digestHasher{md5.New}.Verify(password, digest)
}
