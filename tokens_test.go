package goIdentity

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/token"
)

func TestMagicURLTokenIsSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.CreateMagicURLToken(ctx, Guest(), MagicURLInput{
		Email: "new@x.com",
		URL:   "https://app.example.com/magic",
	})
	if err != nil {
		t.Fatalf("CreateMagicURLToken failed: %v", err)
	}
	if res.Secret != "" {
		t.Fatalf("expected secret to be withheld from a guest caller")
	}

	msg := h.lastMessage(t, "new@x.com")
	if msg.Template != messaging.TemplateMagicSession {
		t.Fatalf("unexpected template %q", msg.Template)
	}
	link, err := url.Parse(msg.Variables["redirect"])
	if err != nil {
		t.Fatalf("redirect parse failed: %v", err)
	}
	userID, secret := link.Query().Get("userId"), link.Query().Get("secret")
	if userID != res.Token.UserID || secret != msg.Variables["secret"] {
		t.Fatalf("redirect does not carry the token credentials: %s", link)
	}

	sess, err := h.engine.CreateSession(ctx, Guest(), userID, secret)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.Session.Provider != session.ProviderMagicURL || !sess.Session.HasFactor(session.FactorEmail) {
		t.Fatalf("unexpected session %+v", sess.Session)
	}

	u, err := h.engine.GetUser(ctx, Server(), userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !u.EmailVerification {
		t.Fatalf("expected magic URL login to verify the email")
	}

	_, err = h.engine.CreateSession(ctx, Guest(), userID, secret)
	expectErr(t, err, ErrInvalidToken)
}

func TestMagicURLTokenExpires(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Tokens.MagicURLTTL = 900 * time.Second })
	ctx := context.Background()

	res, err := h.engine.CreateMagicURLToken(ctx, Guest(), MagicURLInput{Email: "a@x.com", URL: "https://app.example.com"})
	if err != nil {
		t.Fatalf("CreateMagicURLToken failed: %v", err)
	}
	secret := h.lastMessage(t, "a@x.com").Variables["secret"]

	h.clock.Advance(901 * time.Second)
	_, err = h.engine.CreateSession(ctx, Guest(), res.Token.UserID, secret)
	expectErr(t, err, ErrInvalidToken)
}

func TestConcurrentTokenExchangeSucceedsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.CreateEmailToken(ctx, Guest(), EmailTokenInput{Email: "a@x.com"})
	if err != nil {
		t.Fatalf("CreateEmailToken failed: %v", err)
	}
	secret := h.lastMessage(t, "a@x.com").Variables["secret"]

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.CreateSession(ctx, Guest(), res.Token.UserID, secret); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful exchange, got %d", successes)
	}
}

func TestEmailTokenIsNumericWithPhrase(t *testing.T) {
	h := newHarness(t)

	res, err := h.engine.CreateEmailToken(context.Background(), Guest(), EmailTokenInput{Email: "a@x.com", Phrase: true})
	if err != nil {
		t.Fatalf("CreateEmailToken failed: %v", err)
	}
	if res.Token.Phrase == "" {
		t.Fatalf("expected an anti-phishing phrase")
	}
	msg := h.lastMessage(t, "a@x.com")
	if !token.ValidOTP(msg.Variables["secret"], 6) {
		t.Fatalf("expected a 6 digit code, got %q", msg.Variables["secret"])
	}
	if msg.Variables["phrase"] != res.Token.Phrase {
		t.Fatalf("expected message phrase %q, got %q", res.Token.Phrase, msg.Variables["phrase"])
	}
}

func TestEmailTokenReusesExistingUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	res, err := h.engine.CreateEmailToken(ctx, Guest(), EmailTokenInput{Email: "a@x.com"})
	if err != nil {
		t.Fatalf("CreateEmailToken failed: %v", err)
	}
	if res.Token.UserID != c.UserID() {
		t.Fatalf("expected token for existing user %s, got %s", c.UserID(), res.Token.UserID)
	}
}

func TestPhoneTokenSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.CreatePhoneToken(ctx, Guest(), PhoneTokenInput{Phone: "+15550100"})
	if err != nil {
		t.Fatalf("CreatePhoneToken failed: %v", err)
	}
	msg := h.lastMessage(t, "+15550100")
	if msg.Channel != messaging.ChannelSMS || msg.Body != msg.Variables["secret"] {
		t.Fatalf("unexpected sms %+v", msg)
	}

	sess, err := h.engine.CreateSession(ctx, Guest(), res.Token.UserID, msg.Body)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !sess.Session.HasFactor(session.FactorPhone) {
		t.Fatalf("expected phone factor, got %v", sess.Session.Factors)
	}
	u, err := h.engine.GetUser(ctx, Server(), res.Token.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !u.PhoneVerification || u.Phone != "+15550100" {
		t.Fatalf("expected verified phone, got %+v", u)
	}
}

func TestTokenDeliveryDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Messaging.EmailEnabled = false
		cfg.Messaging.SMSEnabled = false
	})
	ctx := context.Background()

	_, err := h.engine.CreateMagicURLToken(ctx, Guest(), MagicURLInput{Email: "a@x.com", URL: "https://app.example.com"})
	expectErr(t, err, ErrEmailDisabled)
	_, err = h.engine.CreatePhoneToken(ctx, Guest(), PhoneTokenInput{Phone: "+15550100"})
	expectErr(t, err, ErrPhoneDisabled)
	_, err = h.engine.CreateSession(ctx, Guest(), "anyone", "secret")
	expectErr(t, err, ErrInvalidToken)
}

func TestRecoveryResetsPasswordOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	if _, err := h.engine.CreateRecovery(ctx, Guest(), "a@x.com", "https://app.example.com/reset"); err != nil {
		t.Fatalf("CreateRecovery failed: %v", err)
	}
	secret := h.lastMessage(t, "a@x.com").Variables["secret"]

	// A rejected password leaves the token usable.
	_, err := h.engine.UpdateRecovery(ctx, Guest(), c.UserID(), secret, "short")
	expectErr(t, err, ErrPasswordTooShort)

	u, err := h.engine.UpdateRecovery(ctx, Guest(), c.UserID(), secret, "password2")
	if err != nil {
		t.Fatalf("UpdateRecovery failed: %v", err)
	}
	if !u.EmailVerification {
		t.Fatalf("expected recovery to verify the email")
	}

	_, err = h.engine.UpdateRecovery(ctx, Guest(), c.UserID(), secret, "password3")
	expectErr(t, err, ErrInvalidToken)

	if _, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password2"); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}
}

func TestRecoveryUnknownEmail(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.CreateRecovery(context.Background(), Guest(), "nobody@x.com", "https://app.example.com")
	expectErr(t, err, ErrUserNotFound)
}

func TestEmailVerificationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	if _, err := h.engine.CreateVerification(ctx, c, "https://app.example.com/verify"); err != nil {
		t.Fatalf("CreateVerification failed: %v", err)
	}
	msg := h.lastMessage(t, "a@x.com")
	if msg.Template != messaging.TemplateVerification || !strings.Contains(msg.Variables["redirect"], "secret=") {
		t.Fatalf("unexpected verification message %+v", msg)
	}

	u, err := h.engine.UpdateVerification(ctx, Guest(), c.UserID(), msg.Variables["secret"])
	if err != nil {
		t.Fatalf("UpdateVerification failed: %v", err)
	}
	if !u.EmailVerification {
		t.Fatalf("expected email to be verified")
	}

	_, err = h.engine.UpdateVerification(ctx, Guest(), c.UserID(), msg.Variables["secret"])
	expectErr(t, err, ErrInvalidToken)
}

func TestPhoneVerificationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	if _, err := h.engine.UpdatePhone(ctx, c, "+15550100", "password1"); err != nil {
		t.Fatalf("UpdatePhone failed: %v", err)
	}
	if _, err := h.engine.CreatePhoneVerification(ctx, c); err != nil {
		t.Fatalf("CreatePhoneVerification failed: %v", err)
	}
	code := h.lastMessage(t, "+15550100").Body

	u, err := h.engine.UpdatePhoneVerification(ctx, Guest(), c.UserID(), code)
	if err != nil {
		t.Fatalf("UpdatePhoneVerification failed: %v", err)
	}
	if !u.PhoneVerification {
		t.Fatalf("expected phone to be verified")
	}
}

func TestUserTokenForServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	_, err := h.engine.CreateUserToken(ctx, c, c.UserID(), UserTokenInput{})
	expectErr(t, err, ErrUnauthorized)

	res, err := h.engine.CreateUserToken(ctx, Server(), c.UserID(), UserTokenInput{Length: 32, TTL: time.Minute})
	if err != nil {
		t.Fatalf("CreateUserToken failed: %v", err)
	}
	if len(res.Secret) != 32 {
		t.Fatalf("expected 32 char secret, got %q", res.Secret)
	}
	if got := res.Token.Expire.Sub(h.clock.Now()); got != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", got)
	}

	sess, err := h.engine.CreateSession(ctx, Guest(), c.UserID(), res.Secret)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.Session.Provider != session.ProviderToken || !sess.Session.HasFactor(session.FactorToken) {
		t.Fatalf("unexpected session %+v", sess.Session)
	}
}
