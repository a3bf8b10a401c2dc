package goIdentity

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/session"
)

func TestEmailPasswordSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, res := h.signUp(t, "a@x.com", "password1")
	if res.Session.Secret != "" {
		t.Fatalf("expected session secret hash to be redacted")
	}
	if !res.Session.HasFactor(session.FactorPassword) || len(res.Session.Factors) != 1 {
		t.Fatalf("expected password factor only, got %v", res.Session.Factors)
	}
	if res.Session.Provider != session.ProviderEmail {
		t.Fatalf("expected email provider, got %q", res.Session.Provider)
	}
	if got := res.Session.Expire.Sub(h.clock.Now()); got != h.engine.Config().Session.Duration {
		t.Fatalf("expected expire = now + duration, got %v", got)
	}

	current, err := h.engine.GetSession(ctx, c, CurrentSession)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if current.ID != res.Session.ID || !current.Current {
		t.Fatalf("expected current session %s, got %+v", res.Session.ID, current)
	}

	wasCurrent, err := h.engine.DeleteSession(ctx, c, CurrentSession)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if !wasCurrent {
		t.Fatalf("expected deleted session to be reported as current")
	}

	resolved, err := h.engine.ResolveCaller(ctx, res.Credential, RequestMeta{})
	if err != nil {
		t.Fatalf("ResolveCaller failed: %v", err)
	}
	if !resolved.IsGuest() {
		t.Fatalf("expected deleted session credential to resolve to a guest")
	}
}

func TestEmailPasswordSessionWrongPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signUp(t, "a@x.com", "password1")

	_, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password2")
	expectErr(t, err, ErrInvalidCredentials)

	_, err = h.engine.CreateEmailPasswordSession(ctx, Guest(), "nobody@x.com", "password1")
	expectErr(t, err, ErrInvalidCredentials)
}

func TestListSessionsFlagsCurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, first := h.signUp(t, "a@x.com", "password1")
	second, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password1")
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession failed: %v", err)
	}

	sessions, err := h.engine.ListSessions(ctx, c)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.Current != (s.ID == first.Session.ID) {
			t.Fatalf("session %s current=%v", s.ID, s.Current)
		}
		if s.Secret != "" {
			t.Fatalf("expected listed sessions to be redacted")
		}
	}

	wasCurrent, err := h.engine.DeleteSession(ctx, c, second.Session.ID)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if wasCurrent {
		t.Fatalf("expected other session not to be reported as current")
	}
}

func TestSessionLimitEvictsOldest(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Session.Limit = 2 })
	ctx := context.Background()

	_, first := h.signUp(t, "a@x.com", "password1")
	for i := 0; i < 2; i++ {
		h.clock.Advance(time.Second)
		if _, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password1"); err != nil {
			t.Fatalf("CreateEmailPasswordSession failed: %v", err)
		}
	}

	sessions, err := h.engine.ListUserSessions(ctx, Server(), first.Session.UserID)
	if err != nil {
		t.Fatalf("ListUserSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions after eviction, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.ID == first.Session.ID {
			t.Fatalf("expected oldest session to be evicted")
		}
	}
}

func TestSessionLimitKeepsNewSessionOnTiedClock(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Session.Limit = 1 })
	ctx := context.Background()

	h.signUp(t, "a@x.com", "password1")
	for i := 0; i < 5; i++ {
		res, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password1")
		if err != nil {
			t.Fatalf("CreateEmailPasswordSession failed: %v", err)
		}
		c := h.resolve(t, res.Credential)
		sessions, err := h.engine.ListSessions(ctx, c)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != res.Session.ID {
			t.Fatalf("login %d: expected only the new session to remain", i)
		}
	}
}

func TestExpiredSessionResolvesToGuest(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Session.Duration = time.Hour })
	_, res := h.signUp(t, "a@x.com", "password1")

	h.clock.Advance(time.Hour)

	c, err := h.engine.ResolveCaller(context.Background(), res.Credential, RequestMeta{})
	if err != nil {
		t.Fatalf("ResolveCaller failed: %v", err)
	}
	if !c.IsGuest() {
		t.Fatalf("expected expired session to resolve to a guest")
	}
}

func TestMalformedCredentialResolvesToGuest(t *testing.T) {
	h := newHarness(t)

	for _, cred := range []string{"", "not-base64!", session.Encode("missing", "secret")} {
		c, err := h.engine.ResolveCaller(context.Background(), cred, RequestMeta{})
		if err != nil {
			t.Fatalf("ResolveCaller(%q) failed: %v", cred, err)
		}
		if !c.IsGuest() {
			t.Fatalf("expected %q to resolve to a guest", cred)
		}
	}
}

func TestUpdateSessionExtendsExpiry(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Session.Duration = time.Hour })
	ctx := context.Background()
	c, res := h.signUp(t, "a@x.com", "password1")

	h.clock.Advance(30 * time.Minute)
	s, err := h.engine.UpdateSession(ctx, c, CurrentSession)
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if !s.Expire.After(res.Session.Expire) {
		t.Fatalf("expected expire to move past %v, got %v", res.Session.Expire, s.Expire)
	}
}

func TestAnonymousSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.CreateAnonymousSession(ctx, Guest())
	if err != nil {
		t.Fatalf("CreateAnonymousSession failed: %v", err)
	}
	if !res.Session.HasFactor(session.FactorAnonymous) {
		t.Fatalf("expected anonymous factor, got %v", res.Session.Factors)
	}

	c := h.resolve(t, res.Credential)
	_, err = h.engine.CreateAnonymousSession(ctx, c)
	expectErr(t, err, ErrSessionAlreadyExists)

	// An anonymous user sets its first password with the email change.
	u, err := h.engine.UpdateEmail(ctx, c, "anon@x.com", "password1")
	if err != nil {
		t.Fatalf("UpdateEmail failed: %v", err)
	}
	if u.Email != "anon@x.com" {
		t.Fatalf("expected email to be set, got %q", u.Email)
	}
	if _, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "anon@x.com", "password1"); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
}

func TestAnonymousSessionDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Auth.Anonymous = false })

	_, err := h.engine.CreateAnonymousSession(context.Background(), Guest())
	expectErr(t, err, ErrAuthMethodDisabled)
}

func TestDeleteSessionsEndsAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")
	other, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password1")
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession failed: %v", err)
	}

	if err := h.engine.DeleteSessions(ctx, c); err != nil {
		t.Fatalf("DeleteSessions failed: %v", err)
	}
	resolved, err := h.engine.ResolveCaller(ctx, other.Credential, RequestMeta{})
	if err != nil {
		t.Fatalf("ResolveCaller failed: %v", err)
	}
	if !resolved.IsGuest() {
		t.Fatalf("expected every session to be gone")
	}
}

func TestSessionOfOtherUserIsNotVisible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.signUp(t, "a@x.com", "password1")
	_, bob := h.signUp(t, "b@x.com", "password1")

	_, err := h.engine.GetSession(ctx, alice, bob.Session.ID)
	expectErr(t, err, ErrSessionNotFound)
	_, err = h.engine.DeleteSession(ctx, alice, bob.Session.ID)
	expectErr(t, err, ErrSessionNotFound)
}

func TestCreateJWTRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, res := h.signUp(t, "a@x.com", "password1")

	raw, err := h.engine.CreateJWT(ctx, c)
	if err != nil {
		t.Fatalf("CreateJWT failed: %v", err)
	}
	resolved, err := h.engine.VerifyJWT(ctx, raw, RequestMeta{})
	if err != nil {
		t.Fatalf("VerifyJWT failed: %v", err)
	}
	if resolved.UserID() != c.UserID() || resolved.Session().ID != res.Session.ID {
		t.Fatalf("JWT resolved to user=%s session=%v", resolved.UserID(), resolved.Session())
	}

	h.clock.Advance(16 * time.Minute)
	_, err = h.engine.VerifyJWT(ctx, raw, RequestMeta{})
	expectErr(t, err, ErrInvalidToken)
}
