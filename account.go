package goIdentity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store"
)

// CreateAccountInput is a self-registration request. An empty UserID (or
// "unique()") generates one.
type CreateAccountInput struct {
	UserID   string
	Email    string
	Password string
	Name     string
}

type newUser struct {
	id            string
	email         string
	phone         string
	name          string
	password      string
	emailVerified bool

	// Imported digest, used when password is empty.
	hash        string
	hashAlgo    string
	hashOptions password.Options

	enforceLimit bool
}

func validUserID(id string) bool {
	if id == "" || len(id) > 36 {
		return false
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case (r == '.' || r == '-' || r == '_') && i > 0:
		default:
			return false
		}
	}
	return true
}

// emailTakenByIdentity is the best-effort early exit before a write that
// would give a user an email some identity already claims. It does not
// replace the store's unique constraint and can race with a concurrent link.
func (e *Engine) emailTakenByIdentity(ctx context.Context, email, exceptUserID string) (bool, error) {
	if email == "" {
		return false, nil
	}
	identities, err := e.store.Identities().ListByProviderEmail(ctx, email)
	if err != nil {
		return false, translate(err, nil, nil)
	}
	for _, ident := range identities {
		if ident.UserID != exceptUserID {
			return true, nil
		}
	}
	return false, nil
}

// createUser persists a user and one target per contact address. A failed
// target write removes the user again.
func (e *Engine) createUser(ctx context.Context, c Caller, nu newUser) (*store.User, error) {
	if nu.enforceLimit && e.config.Auth.UserLimit > 0 {
		total, err := e.store.Users().Count(ctx)
		if err != nil {
			return nil, translate(err, nil, nil)
		}
		if total >= e.config.Auth.UserLimit {
			return nil, ErrUserLimitExceeded
		}
	}

	id := nu.id
	if id == "" || id == "unique()" {
		id = ""
	} else if !validUserID(id) {
		return nil, invalidInput("invalid user id %q", nu.id)
	}

	taken, err := e.emailTakenByIdentity(ctx, nu.email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		e.metricInc(MetricAccountDuplicate)
		return nil, ErrUserAlreadyExists
	}

	now := e.now()
	u := &store.User{
		Meta:              e.newMeta(nil),
		Name:              nu.name,
		Email:             nu.email,
		Phone:             nu.phone,
		EmailVerification: nu.emailVerified,
		Status:            store.StatusActive,
		Registration:      now,
		AccessedAt:        now,
	}
	if id != "" {
		u.ID = id
	}
	u.Permissions = permission.Owner(u.ID)

	switch {
	case nu.password != "":
		if err := e.checkPassword(u, nu.password); err != nil {
			return nil, err
		}
		if err := e.setPassword(u, nu.password); err != nil {
			return nil, err
		}
	case nu.hash != "":
		if _, err := password.New(nu.hashAlgo, nu.hashOptions); err != nil {
			return nil, invalidInput("%v", err)
		}
		u.Password = nu.hash
		u.Hash = nu.hashAlgo
		u.HashOptions = nu.hashOptions
		u.HashOptions.Type = nu.hashAlgo
		u.PasswordUpdate = now
	}

	if err := e.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			e.metricInc(MetricAccountDuplicate)
		}
		return nil, translate(err, nil, ErrUserAlreadyExists)
	}

	var targets []*store.Target
	addTarget := func(providerType, identifier string) error {
		t, err := e.insertTarget(ctx, u.ID, store.Target{ProviderType: providerType, Identifier: identifier})
		if err != nil {
			return err
		}
		targets = append(targets, t)
		return nil
	}
	if u.Email != "" {
		err = addTarget(store.TargetEmail, u.Email)
	}
	if err == nil && u.Phone != "" {
		err = addTarget(store.TargetSMS, u.Phone)
	}
	if err != nil {
		for _, t := range targets {
			e.logBestEffort("target rollback failed", e.store.Targets().Delete(ctx, t.ID), zap.String("target_id", t.ID))
		}
		e.logBestEffort("user rollback failed", e.store.Users().Delete(ctx, u.ID), zap.String("user_id", u.ID))
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emit(ctx, EventUserCreated, c, u.ID, u.ID, u.Redacted())
	for _, t := range targets {
		e.emit(ctx, EventTargetCreated, c, u.ID, t.ID, *t)
	}
	return u, nil
}

// CreateAccount registers a user with email and password. The email starts
// unverified and gets an email target.
func (e *Engine) CreateAccount(ctx context.Context, c Caller, in CreateAccountInput) (*store.User, error) {
	if !e.config.Auth.EmailPassword {
		return nil, ErrAuthMethodDisabled
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, ErrPasswordTooShort
	}
	u, err := e.createUser(ctx, c, newUser{
		id:           in.UserID,
		email:        email,
		name:         strings.TrimSpace(in.Name),
		password:     in.Password,
		enforceLimit: true,
	})
	if err != nil {
		return nil, err
	}
	return redactedUser(u), nil
}

// GetAccount returns the caller's user. It is open to callers with a pending
// MFA challenge.
func (e *Engine) GetAccount(ctx context.Context, c Caller) (*store.User, error) {
	if err := e.requireUser(c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	return redactedUser(u), nil
}

func (e *Engine) UpdateName(ctx context.Context, c Caller, name string) (*store.User, error) {
	return e.mutateAccount(ctx, c, func(u *store.User) error {
		name = strings.TrimSpace(name)
		if len(name) > 128 {
			return invalidInput("name longer than 128 characters")
		}
		u.Name = name
		return nil
	})
}

// UpdatePrefs replaces the caller's preferences.
func (e *Engine) UpdatePrefs(ctx context.Context, c Caller, prefs map[string]any) (*store.User, error) {
	return e.mutateAccount(ctx, c, func(u *store.User) error {
		u.Prefs = prefs
		return nil
	})
}

// UpdateEmail changes the caller's email and resets its verification. A
// user without a password (anonymous or OAuth2) sets password as their
// first one.
func (e *Engine) UpdateEmail(ctx context.Context, c Caller, email, pass string) (*store.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := e.confirmOrSetPassword(u, pass); err != nil {
		return nil, err
	}

	taken, err := e.emailTakenByIdentity(ctx, email, u.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUserAlreadyExists
	}

	if _, err := e.targetOwnedBy(ctx, u.ID, store.TargetEmail, email); err != nil {
		return nil, err
	}

	old, oldVerified := u.Email, u.EmailVerification
	u.Email = email
	u.EmailVerification = false
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	if err := e.syncTarget(ctx, c, u.ID, store.TargetEmail, old, email); err != nil {
		u.Email, u.EmailVerification = old, oldVerified
		e.restoreUser(ctx, u)
		return nil, err
	}
	e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	return redactedUser(u), nil
}

// UpdatePhone changes the caller's phone and resets its verification.
func (e *Engine) UpdatePhone(ctx context.Context, c Caller, phone, pass string) (*store.User, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := e.confirmOrSetPassword(u, pass); err != nil {
		return nil, err
	}

	if _, err := e.targetOwnedBy(ctx, u.ID, store.TargetSMS, phone); err != nil {
		return nil, err
	}

	old, oldVerified := u.Phone, u.PhoneVerification
	u.Phone = phone
	u.PhoneVerification = false
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	if err := e.syncTarget(ctx, c, u.ID, store.TargetSMS, old, phone); err != nil {
		u.Phone, u.PhoneVerification = old, oldVerified
		e.restoreUser(ctx, u)
		return nil, err
	}
	e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	return redactedUser(u), nil
}

// restoreUser writes back an address change whose target update failed.
func (e *Engine) restoreUser(ctx context.Context, u *store.User) {
	if err := e.updateUser(ctx, u); err != nil {
		e.logBestEffort("address rollback failed", err, zap.String("user_id", u.ID))
	}
}

func (e *Engine) confirmOrSetPassword(u *store.User, pass string) error {
	if u.Password != "" {
		if !e.verifyPassword(u, pass) {
			return ErrInvalidCredentials
		}
		return nil
	}
	if err := e.checkPassword(u, pass); err != nil {
		return err
	}
	return e.setPassword(u, pass)
}

// UpdatePassword changes the caller's password. oldPassword is not required
// when the account has none yet.
func (e *Engine) UpdatePassword(ctx context.Context, c Caller, newPassword, oldPassword string) (*store.User, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if u.Password != "" && !e.verifyPassword(u, oldPassword) {
		return nil, ErrInvalidCredentials
	}
	if err := e.checkPassword(u, newPassword); err != nil {
		return nil, err
	}
	if err := e.setPassword(u, newPassword); err != nil {
		return nil, err
	}
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	e.metricInc(MetricPasswordChanged)
	e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	return redactedUser(u), nil
}

// UpdateStatus blocks the caller's own account and deletes its sessions.
func (e *Engine) UpdateStatus(ctx context.Context, c Caller) (*store.User, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	u.Status = store.StatusBlocked
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	if err := e.deleteAllSessions(ctx, c, u.ID); err != nil {
		return nil, err
	}
	e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	return redactedUser(u), nil
}

func (e *Engine) mutateAccount(ctx context.Context, c Caller, mutate func(*store.User) error) (*store.User, error) {
	if err := e.requireFactors(ctx, c); err != nil {
		return nil, err
	}
	u, err := e.userOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := mutate(u); err != nil {
		return nil, err
	}
	if err := e.updateUser(ctx, u); err != nil {
		return nil, err
	}
	e.emit(ctx, EventUserUpdated, c, u.ID, u.ID, u.Redacted())
	return redactedUser(u), nil
}
