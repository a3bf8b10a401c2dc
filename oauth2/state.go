package oauth2

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrInvalidState is returned when a callback state cannot be parsed.
var ErrInvalidState = errors.New("oauth2: invalid state")

// State is round-tripped through the provider and tells the callback where
// to send the user and whether to mint a token instead of a session.
type State struct {
	Success string   `json:"success"`
	Failure string   `json:"failure"`
	Token   bool     `json:"token,omitempty"`
	Scopes  []string `json:"scopes,omitempty"`
}

// EncodeState serializes s for the provider's state parameter.
func EncodeState(s State) string {
	raw, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseState is the inverse of EncodeState.
func ParseState(value string) (State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return State{}, ErrInvalidState
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, ErrInvalidState
	}
	return s, nil
}
