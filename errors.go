package goIdentity

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine matches exactly one of
// these with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrAlreadyExists        = errors.New("already exists")
	ErrLimitExceeded        = errors.New("limit exceeded")
	ErrDisabled             = errors.New("disabled")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrPersonalDataRejected = errors.New("password contains personal data")
	ErrPasswordRecentlyUsed = errors.New("password recently used")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("concurrent modification")
	ErrUnavailable          = errors.New("backend unavailable")
	ErrEngineNotReady       = errors.New("engine not initialized")
)

// kindError is a specific error that unwraps to its kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrUserNotFound          = newKind(ErrNotFound, "user not found")
	ErrSessionNotFound       = newKind(ErrNotFound, "session not found")
	ErrTargetNotFound        = newKind(ErrNotFound, "target not found")
	ErrIdentityNotFound      = newKind(ErrNotFound, "identity not found")
	ErrChallengeNotFound     = newKind(ErrNotFound, "mfa challenge not found")
	ErrAuthenticatorNotFound = newKind(ErrNotFound, "mfa authenticator not found")
	ErrRecoveryCodesNotFound = newKind(ErrNotFound, "mfa recovery codes not found")
	ErrProviderNotFound      = newKind(ErrNotFound, "oauth2 provider not found")

	ErrUserAlreadyExists            = newKind(ErrAlreadyExists, "a user with the same id, email, or phone already exists")
	ErrTargetAlreadyExists          = newKind(ErrAlreadyExists, "a target with the same identifier already exists")
	ErrIdentityAlreadyExists        = newKind(ErrAlreadyExists, "the identity is already linked to another user")
	ErrAuthenticatorAlreadyVerified = newKind(ErrAlreadyExists, "mfa authenticator already verified")
	ErrRecoveryCodesAlreadyExist    = newKind(ErrAlreadyExists, "mfa recovery codes already generated")
	ErrSessionAlreadyExists         = newKind(ErrAlreadyExists, "a session is already active for this caller")

	ErrUserLimitExceeded = newKind(ErrLimitExceeded, "user registration limit reached")

	ErrAuthMethodDisabled = newKind(ErrDisabled, "authentication method disabled")
	ErrEmailDisabled      = newKind(ErrDisabled, "email delivery disabled")
	ErrPhoneDisabled      = newKind(ErrDisabled, "sms delivery disabled")
	ErrEmailNotVerified   = newKind(ErrDisabled, "email not verified")
	ErrPhoneNotVerified   = newKind(ErrDisabled, "phone not verified")
	ErrMFANotEnabled      = newKind(ErrDisabled, "no mfa factor available")

	ErrUserBlocked         = newKind(ErrUnauthorized, "user blocked")
	ErrMoreFactorsRequired = newKind(ErrUnauthorized, "more factors are required to complete this session")
	ErrGuestRequired       = newKind(ErrUnauthorized, "operation requires a guest caller")
	ErrUserRequired        = newKind(ErrUnauthorized, "operation requires an authenticated caller")
	ErrElevatedRequired    = newKind(ErrUnauthorized, "operation requires an elevated caller")

	ErrPasswordTooShort = newKind(ErrInvalidInput, "password too short")
	ErrInvalidOTP       = newKind(ErrInvalidToken, "invalid otp")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
