package goIdentity

import (
	"context"
	"crypto/subtle"
	"errors"
	"slices"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
)

// MFA method types. They double as the session factor names they satisfy.
const (
	MFATypeTOTP         = session.FactorTOTP
	MFATypeEmail        = session.FactorEmail
	MFATypePhone        = session.FactorPhone
	MFATypeRecoveryCode = session.FactorRecoveryCode
)

// MFAFactors lists the second factors a user can currently complete.
type MFAFactors struct {
	TOTP         bool `json:"totp"`
	Email        bool `json:"email"`
	Phone        bool `json:"phone"`
	RecoveryCode bool `json:"recoveryCode"`
}

// MFAProvision is returned when a TOTP authenticator is registered.
type MFAProvision struct {
	Authenticator *store.Authenticator
	Secret        string
	URI           string
}

func (e *Engine) availableFactors(ctx context.Context, u *store.User) (MFAFactors, error) {
	f := MFAFactors{
		Email:        u.Email != "" && u.EmailVerification,
		Phone:        u.Phone != "" && u.PhoneVerification,
		RecoveryCode: len(u.MFARecoveryCodes) > 0,
	}
	a, err := e.store.Authenticators().FindByUserType(ctx, u.ID, MFATypeTOTP)
	switch {
	case err == nil:
		f.TOTP = a.Verified
	case !errors.Is(err, store.ErrNotFound):
		return MFAFactors{}, translate(err, nil, nil)
	}
	return f, nil
}

// ListMFAFactors is open to callers with a pending challenge so they can
// pick a factor.
func (e *Engine) ListMFAFactors(ctx context.Context, c Caller) (MFAFactors, error) {
	if err := e.requireUser(c); err != nil {
		return MFAFactors{}, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return MFAFactors{}, err
	}
	return e.availableFactors(ctx, u)
}

// UpdateMFA turns enforcement of a second factor on or off for the caller.
func (e *Engine) UpdateMFA(ctx context.Context, c Caller, enabled bool) (*store.User, error) {
	return e.mutateAccount(ctx, c, func(u *store.User) error {
		u.MFA = enabled
		return nil
	})
}

// CreateMFAAuthenticator registers a TOTP seed for the caller. An unverified
// registration is replaced; a verified one must be deleted first.
func (e *Engine) CreateMFAAuthenticator(ctx context.Context, c Caller, typ string) (*MFAProvision, error) {
	if typ != MFATypeTOTP {
		return nil, invalidInput("unsupported authenticator type %q", typ)
	}
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.Authenticators().FindByUserType(ctx, u.ID, typ)
	switch {
	case err == nil:
		if existing.Verified {
			return nil, ErrAuthenticatorAlreadyVerified
		}
		if err := e.store.Authenticators().Delete(ctx, existing.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, translate(err, nil, nil)
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, translate(err, nil, nil)
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	a := &store.Authenticator{
		Meta:   e.newMeta(permission.Owner(u.ID)),
		UserID: u.ID,
		Type:   typ,
		Data:   store.AuthenticatorData{Secret: secret},
	}
	if err := e.store.Authenticators().Create(ctx, a); err != nil {
		return nil, translate(err, nil, ErrAuthenticatorAlreadyVerified)
	}
	e.emit(ctx, EventMFAAuthenticatorCreated, c, u.ID, a.ID, a.Redacted())

	out := a.Redacted()
	return &MFAProvision{
		Authenticator: &out,
		Secret:        secret,
		URI:           e.totp.ProvisionURI(secret, accountLabel(u)),
	}, nil
}

func accountLabel(u *store.User) string {
	switch {
	case u.Email != "":
		return u.Email
	case u.Phone != "":
		return u.Phone
	default:
		return u.ID
	}
}

// UpdateMFAAuthenticator verifies a registration with its first code. The
// current session gains the totp factor.
func (e *Engine) UpdateMFAAuthenticator(ctx context.Context, c Caller, typ, otp string) (*store.Authenticator, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	a, err := e.store.Authenticators().FindByUserType(ctx, c.User.ID, typ)
	if err != nil {
		return nil, translate(err, ErrAuthenticatorNotFound, nil)
	}
	if a.Verified {
		return nil, ErrAuthenticatorAlreadyVerified
	}
	if !e.acceptTOTP(a, otp) {
		return nil, ErrInvalidOTP
	}

	a.Verified = true
	e.touch(&a.Meta)
	if err := e.store.Authenticators().Update(ctx, a); err != nil {
		return nil, translate(err, ErrAuthenticatorNotFound, nil)
	}
	if _, err := e.addSessionFactor(ctx, c, session.FactorTOTP); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	e.metricInc(MetricMFAAuthenticatorVerified)
	e.emit(ctx, EventMFAAuthenticatorVerified, c, a.UserID, a.ID, a.Redacted())
	out := a.Redacted()
	return &out, nil
}

// acceptTOTP checks otp against a's seed and advances a.Data.LastCounter.
// A code from a time step already used is rejected. The caller persists a.
func (e *Engine) acceptTOTP(a *store.Authenticator, otp string) bool {
	counter, ok, err := e.totp.VerifyAfter(a.Data.Secret, otp, e.now(), a.Data.LastCounter)
	if err != nil || !ok {
		return false
	}
	a.Data.LastCounter = counter
	return true
}

// DeleteMFAAuthenticator removes the caller's authenticator of typ.
func (e *Engine) DeleteMFAAuthenticator(ctx context.Context, c Caller, typ string) error {
	if err := e.requireFactors(ctx, c); err != nil {
		return err
	}
	return e.deleteAuthenticator(ctx, c, c.User.ID, typ)
}

func (e *Engine) deleteAuthenticator(ctx context.Context, c Caller, userID, typ string) error {
	a, err := e.store.Authenticators().FindByUserType(ctx, userID, typ)
	if err != nil {
		return translate(err, ErrAuthenticatorNotFound, nil)
	}
	if err := e.store.Authenticators().Delete(ctx, a.ID); err != nil {
		return translate(err, ErrAuthenticatorNotFound, nil)
	}
	e.emit(ctx, EventMFAAuthenticatorDeleted, c, userID, a.ID, a.Redacted())
	return nil
}

// CreateMFAChallenge starts a second factor verification. Email and phone
// challenges deliver a code to a verified channel.
func (e *Engine) CreateMFAChallenge(ctx context.Context, c Caller, factor string) (*store.Challenge, error) {
	if err := e.requireUser(c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}

	var msg *messaging.Message
	switch factor {
	case MFATypeTOTP:
		a, err := e.store.Authenticators().FindByUserType(ctx, u.ID, MFATypeTOTP)
		if err != nil {
			return nil, translate(err, ErrAuthenticatorNotFound, nil)
		}
		if !a.Verified {
			return nil, ErrAuthenticatorNotFound
		}
	case MFATypeEmail:
		if !e.config.Messaging.EmailEnabled {
			return nil, ErrEmailDisabled
		}
		if u.Email == "" || !u.EmailVerification {
			return nil, ErrEmailNotVerified
		}
		msg = &messaging.Message{
			Channel:   messaging.ChannelEmail,
			Recipient: u.Email,
			Subject:   "Verification code",
			Template:  messaging.TemplateMFAChallenge,
		}
	case MFATypePhone:
		if !e.config.Messaging.SMSEnabled {
			return nil, ErrPhoneDisabled
		}
		if u.Phone == "" || !u.PhoneVerification {
			return nil, ErrPhoneNotVerified
		}
		msg = &messaging.Message{
			Channel:   messaging.ChannelSMS,
			Recipient: u.Phone,
			Template:  messaging.TemplateMFAChallenge,
		}
	case MFATypeRecoveryCode:
		if len(u.MFARecoveryCodes) == 0 {
			return nil, ErrRecoveryCodesNotFound
		}
	default:
		return nil, invalidInput("unknown factor %q", factor)
	}

	now := e.now()
	ch := &store.Challenge{
		Meta:   e.newMeta(permission.Owner(u.ID)),
		UserID: u.ID,
		Type:   factor,
		Expire: now.Add(e.config.MFA.ChallengeTTL),
	}
	var code string
	if msg != nil {
		code, err = internal.NewOTP(e.config.MFA.CodeLength)
		if err != nil {
			return nil, err
		}
		ch.Code = internal.HashSecret(code)
	}
	if err := e.store.Challenges().Create(ctx, ch); err != nil {
		return nil, translate(err, nil, nil)
	}

	if msg != nil {
		if msg.Channel == messaging.ChannelSMS {
			msg.Body = code
		}
		msg.Variables = map[string]string{
			"user":        u.Name,
			"userId":      u.ID,
			"challengeId": ch.ID,
			"code":        code,
		}
		e.send(ctx, *msg)
	}

	e.metricInc(MetricMFAChallengeCreated)
	e.emit(ctx, EventMFAChallengeCreated, c, u.ID, ch.ID, ch.Redacted())
	out := ch.Redacted()
	return &out, nil
}

// UpdateMFAChallenge completes a challenge. A wrong code leaves the
// challenge in place until it expires. On success the challenge is deleted
// and the factor is added to the caller's current session.
func (e *Engine) UpdateMFAChallenge(ctx context.Context, c Caller, challengeID, otp string) (*store.Session, error) {
	if err := e.requireUser(c); err != nil {
		return nil, err
	}
	ch, err := e.store.Challenges().Get(ctx, challengeID)
	if err != nil {
		return nil, translate(err, ErrChallengeNotFound, nil)
	}
	if ch.UserID != c.User.ID || !e.allowed(c, ch.Permissions, permission.Update) {
		return nil, ErrChallengeNotFound
	}
	if !e.now().Before(ch.Expire) {
		e.metricInc(MetricMFAChallengeFailed)
		return nil, ErrInvalidToken
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}

	var (
		ok       bool
		codeSlot = -1
	)
	switch ch.Type {
	case MFATypeTOTP:
		a, err := e.store.Authenticators().FindByUserType(ctx, u.ID, MFATypeTOTP)
		if err != nil {
			return nil, translate(err, ErrAuthenticatorNotFound, nil)
		}
		ok = a.Verified && e.acceptTOTP(a, otp)
		if ok {
			e.touch(&a.Meta)
			if err := e.store.Authenticators().Update(ctx, a); err != nil {
				if !errors.Is(err, store.ErrConflict) {
					return nil, translate(err, ErrAuthenticatorNotFound, nil)
				}
				// A concurrent redemption of the same code won.
				ok = false
			}
		}
	case MFATypeEmail, MFATypePhone:
		ok = internal.SecretMatches(otp, ch.Code)
	case MFATypeRecoveryCode:
		codeSlot = recoveryCodeIndex(u.MFARecoveryCodes, otp)
		ok = codeSlot >= 0
	}
	if !ok {
		e.metricInc(MetricMFAChallengeFailed)
		return nil, ErrInvalidOTP
	}

	removed, err := e.store.Challenges().Delete(ctx, ch.ID)
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	if !removed {
		e.metricInc(MetricMFAChallengeFailed)
		return nil, ErrInvalidToken
	}

	if codeSlot >= 0 {
		u.MFARecoveryCodes = slices.Delete(slices.Clone(u.MFARecoveryCodes), codeSlot, codeSlot+1)
		if err := e.updateUser(ctx, u); err != nil {
			return nil, err
		}
		e.metricInc(MetricRecoveryCodeUsed)
		e.emit(ctx, EventMFARecoveryCodesUpdated, c, u.ID, u.ID, u.Redacted())
	}

	s, err := e.addSessionFactor(ctx, c, ch.Type)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricMFAChallengeVerified)
	e.emit(ctx, EventMFAChallengeVerified, c, u.ID, ch.ID, ch.Redacted())
	return s, nil
}

func recoveryCodeIndex(codes []string, candidate string) int {
	found := -1
	for i, code := range codes {
		if subtle.ConstantTimeCompare([]byte(code), []byte(candidate)) == 1 && found < 0 {
			found = i
		}
	}
	return found
}

// addSessionFactor records factor on the caller's current session and
// returns the redacted result.
func (e *Engine) addSessionFactor(ctx context.Context, c Caller, factor string) (*store.Session, error) {
	id, err := e.currentSessionID(ctx, c)
	if err != nil {
		return nil, err
	}
	s, err := e.store.Sessions().Get(ctx, id)
	if err != nil {
		return nil, translate(err, ErrSessionNotFound, nil)
	}
	session.AddFactor(s, factor)
	s.MFAUpdatedAt = e.now()
	e.touch(&s.Meta)
	if err := e.store.Sessions().Update(ctx, s); err != nil {
		return nil, translate(err, ErrSessionNotFound, nil)
	}
	e.emit(ctx, EventSessionUpdated, c, s.UserID, s.ID, s.Redacted())

	out := s.Redacted()
	out.Current = true
	return &out, nil
}

// CreateMFARecoveryCodes generates the caller's first recovery code pool.
func (e *Engine) CreateMFARecoveryCodes(ctx context.Context, c Caller) ([]string, error) {
	return e.writeRecoveryCodes(ctx, c, false)
}

// UpdateMFARecoveryCodes discards the pool and generates a new one.
func (e *Engine) UpdateMFARecoveryCodes(ctx context.Context, c Caller) ([]string, error) {
	return e.writeRecoveryCodes(ctx, c, true)
}

// GetMFARecoveryCodes returns the caller's unused recovery codes.
func (e *Engine) GetMFARecoveryCodes(ctx context.Context, c Caller) ([]string, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(u.MFARecoveryCodes) == 0 {
		return nil, ErrRecoveryCodesNotFound
	}
	return slices.Clone(u.MFARecoveryCodes), nil
}

func (e *Engine) writeRecoveryCodes(ctx context.Context, c Caller, regenerate bool) ([]string, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	switch {
	case !regenerate && len(u.MFARecoveryCodes) > 0:
		return nil, ErrRecoveryCodesAlreadyExist
	case regenerate && len(u.MFARecoveryCodes) == 0:
		return nil, ErrRecoveryCodesNotFound
	}

	codes := make([]string, 0, e.config.MFA.RecoveryCodeCount)
	for len(codes) < e.config.MFA.RecoveryCodeCount {
		code, err := internal.NewSecret(e.config.MFA.RecoveryCodeLength)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(codes, code) {
			codes = append(codes, code)
		}
	}
	u.MFARecoveryCodes = codes
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}

	name := EventMFARecoveryCodesCreated
	if regenerate {
		name = EventMFARecoveryCodesUpdated
	}
	e.emit(ctx, name, c, u.ID, u.ID, u.Redacted())
	return slices.Clone(codes), nil
}
