package session

import (
	"slices"
	"sort"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/store"
)

// Providers a session can be created by.
const (
	ProviderEmail     = "email"
	ProviderAnonymous = "anonymous"
	ProviderMagicURL  = "magic-url"
	ProviderPhone     = "phone"
	ProviderOAuth2    = "oauth2"
	ProviderToken     = "token"
	ProviderServer    = "server"
)

// Factor names.
const (
	FactorPassword     = "password"
	FactorAnonymous    = "anonymous"
	FactorEmail        = "email"
	FactorPhone        = "phone"
	FactorOAuth2       = "oauth2"
	FactorToken        = "token"
	FactorServer       = "server"
	FactorTOTP         = "totp"
	FactorRecoveryCode = "recoveryCode"
)

// InitialFactors returns the factor set satisfied by logging in with provider.
func InitialFactors(provider string) []string {
	switch provider {
	case ProviderEmail:
		return []string{FactorPassword}
	case ProviderAnonymous:
		return []string{FactorAnonymous}
	case ProviderOAuth2:
		return []string{FactorEmail, FactorOAuth2}
	case ProviderMagicURL:
		return []string{FactorEmail}
	case ProviderPhone:
		return []string{FactorPhone}
	case ProviderServer:
		return []string{FactorServer}
	default:
		return []string{FactorToken}
	}
}

// AddFactor appends factor unless already present and reports whether the
// set changed.
func AddFactor(s *store.Session, factor string) bool {
	if slices.Contains(s.Factors, factor) {
		return false
	}
	s.Factors = append(s.Factors, factor)
	return true
}

// Expired reports whether s is no longer usable at now.
func Expired(s *store.Session, now time.Time) bool {
	return !now.Before(s.Expire)
}

// FindCurrent returns the id of the session whose stored hash matches the
// ambient secret, or "" when none does.
func FindCurrent(sessions []*store.Session, secret string) string {
	if secret == "" {
		return ""
	}
	for _, s := range sessions {
		if s != nil && internal.SecretMatches(secret, s.Secret) {
			return s.ID
		}
	}
	return ""
}

// MarkCurrent sets Current on the session matching secret and clears it on
// the others.
func MarkCurrent(sessions []*store.Session, secret string) {
	current := FindCurrent(sessions, secret)
	for _, s := range sessions {
		s.Current = current != "" && s.ID == current
	}
}

// Overflow returns the oldest sessions that must be evicted so that at most
// limit remain. The session with id keep is never returned. A limit of zero
// or less disables the cap.
func Overflow(sessions []*store.Session, limit int, keep string) []*store.Session {
	if limit <= 0 || len(sessions) <= limit {
		return nil
	}
	candidates := make([]*store.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID != keep {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[:len(sessions)-limit]
}
