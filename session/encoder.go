package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedCredential is returned when a transport credential cannot be decoded.
var ErrMalformedCredential = errors.New("session: malformed credential")

type credential struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// Encode combines a user id and plaintext session secret into the opaque
// value used as a cookie or header.
func Encode(userID, secret string) string {
	raw, _ := json.Marshal(credential{ID: userID, Secret: secret})
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode is the inverse of Encode. Unpadded and URL-safe input is accepted.
func Decode(value string) (userID, secret string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", ErrMalformedCredential
	}

	raw, err := decodeBase64(value)
	if err != nil {
		return "", "", ErrMalformedCredential
	}

	var c credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", "", ErrMalformedCredential
	}
	if c.ID == "" || c.Secret == "" {
		return "", "", ErrMalformedCredential
	}
	return c.ID, c.Secret, nil
}

func decodeBase64(value string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(value); err == nil {
			return raw, nil
		}
	}
	return nil, ErrMalformedCredential
}
