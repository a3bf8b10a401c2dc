package goIdentity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/store"
)

// checkPassword applies the length, personal data and history rules to a
// candidate password for u. u may be a user that is not stored yet.
func (e *Engine) checkPassword(u *store.User, candidate string) error {
	if len(candidate) < e.config.Password.MinLength {
		return ErrPasswordTooShort
	}
	if len(candidate) > password.DefaultMaxPasswordBytes {
		return invalidInput("password exceeds %d bytes", password.DefaultMaxPasswordBytes)
	}
	if e.config.Password.PersonalDataCheck && containsPersonalData(u, candidate) {
		return ErrPersonalDataRejected
	}
	if e.config.Password.HistoryLimit > 0 &&
		!password.IsValidAgainstHistory(candidate, u.PasswordHistory, password.AlgoArgon2, e.config.Password.Options()) {
		e.metricInc(MetricPasswordHistoryRejected)
		return ErrPasswordRecentlyUsed
	}
	return nil
}

func containsPersonalData(u *store.User, candidate string) bool {
	pw := strings.ToLower(candidate)
	var parts []string
	if u.ID != "" {
		parts = append(parts, u.ID)
	}
	if u.Name != "" {
		parts = append(parts, u.Name)
	}
	if u.Email != "" {
		parts = append(parts, u.Email)
		if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
			parts = append(parts, local)
		}
	}
	if u.Phone != "" {
		parts = append(parts, u.Phone, strings.TrimPrefix(u.Phone, "+"))
	}
	for _, p := range parts {
		if strings.Contains(pw, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// setPassword hashes plaintext with the default algorithm and records it in
// the history window. Callers run checkPassword first.
func (e *Engine) setPassword(u *store.User, plaintext string) error {
	opts := e.config.Password.Options()
	digest, err := password.Hash(plaintext, password.AlgoArgon2, opts)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return invalidInput("password too long")
		}
		return err
	}
	u.Password = digest
	u.Hash = password.AlgoArgon2
	u.HashOptions = opts
	u.PasswordUpdate = e.now()
	u.PasswordHistory = password.PushHistory(u.PasswordHistory, digest, e.config.Password.HistoryLimit)
	return nil
}

// verifyPassword checks plaintext against the stored digest of u.
func (e *Engine) verifyPassword(u *store.User, plaintext string) bool {
	if u.Password == "" {
		return false
	}
	ok, err := password.Verify(plaintext, u.Password, u.Hash, u.HashOptions)
	if err != nil {
		e.logger.Debug("password verification error", zap.String("user_id", u.ID), zap.String("hash", u.Hash), zap.Error(err))
		return false
	}
	return ok
}

// upgradeHash rewrites a legacy or outdated digest after a successful
// verification. Failures are logged and never fail the login.
func (e *Engine) upgradeHash(ctx context.Context, u *store.User, plaintext string) {
	opts := e.config.Password.Options()
	if !password.NeedsUpgrade(u.Password, u.Hash, opts) {
		return
	}
	digest, err := password.Hash(plaintext, password.AlgoArgon2, opts)
	if err != nil {
		e.logBestEffort("password hash upgrade failed", err, zap.String("user_id", u.ID))
		return
	}
	old := u.Password
	if n := len(u.PasswordHistory); n > 0 && u.PasswordHistory[n-1] == old {
		history := append([]string(nil), u.PasswordHistory...)
		history[n-1] = digest
		u.PasswordHistory = history
	}
	u.Password = digest
	u.Hash = password.AlgoArgon2
	u.HashOptions = opts
	if err := e.updateUser(ctx, u); err != nil {
		e.logBestEffort("password hash upgrade failed", err, zap.String("user_id", u.ID))
		return
	}
	e.metricInc(MetricPasswordHashUpgraded)
}
