package goIdentity

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goIdentity/oauth2"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
)

func TestUsersServiceRequiresElevatedCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	_, err := h.engine.GetUser(ctx, c, c.UserID())
	expectErr(t, err, ErrUnauthorized)
	err = h.engine.DeleteUser(ctx, Guest(), c.UserID())
	expectErr(t, err, ErrUnauthorized)
	_, err = h.engine.CreateTarget(ctx, c, c.UserID(), TargetInput{ProviderType: store.TargetPush, Identifier: "device"})
	expectErr(t, err, ErrElevatedRequired)

	if _, err := h.engine.GetUser(ctx, c.Elevated(), c.UserID()); err != nil {
		t.Fatalf("expected elevated copy of caller to pass: %v", err)
	}
}

func TestCreateUserWithPhoneAndCustomID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.engine.CreateUser(ctx, Server(), CreateUserInput{
		UserID:   "alice",
		Email:    "alice@x.com",
		Phone:    "+15550100",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.ID != "alice" {
		t.Fatalf("expected custom id, got %q", u.ID)
	}

	targets, err := h.engine.ListUserTargets(ctx, Server(), u.ID)
	if err != nil {
		t.Fatalf("ListUserTargets failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected email and sms targets, got %d", len(targets))
	}

	_, err = h.engine.CreateUser(ctx, Server(), CreateUserInput{UserID: "alice", Email: "other@x.com"})
	expectErr(t, err, ErrUserAlreadyExists)
	_, err = h.engine.CreateUser(ctx, Server(), CreateUserInput{Phone: "+15550100"})
	expectErr(t, err, ErrUserAlreadyExists)
	_, err = h.engine.CreateUser(ctx, Server(), CreateUserInput{UserID: "-bad"})
	expectErr(t, err, ErrInvalidInput)
}

func TestDeleteUserCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provider.AddUser("code-1", oauth2.Profile{ID: "gh-1", Email: "dev@x.com", EmailVerified: true})

	res, err := h.engine.CompleteOAuth2(ctx, Guest(), "mock", "code-1", oauthState(t, h, Guest(), false))
	if err != nil {
		t.Fatalf("CompleteOAuth2 failed: %v", err)
	}
	userID := res.User.ID
	c := h.resolve(t, res.Session.Credential)
	if _, err := h.engine.CreateMFAAuthenticator(ctx, c, MFATypeTOTP); err != nil {
		t.Fatalf("CreateMFAAuthenticator failed: %v", err)
	}
	if _, err := h.engine.CreateUserToken(ctx, Server(), userID, UserTokenInput{}); err != nil {
		t.Fatalf("CreateUserToken failed: %v", err)
	}

	if err := h.engine.DeleteUser(ctx, Server(), userID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	_, err = h.engine.GetUser(ctx, Server(), userID)
	expectErr(t, err, ErrUserNotFound)

	b := h.engine.store
	if sessions, _ := b.Sessions().ListByUser(ctx, userID); len(sessions) != 0 {
		t.Fatalf("expected sessions to be deleted, got %d", len(sessions))
	}
	if tokens, _ := b.Tokens().ListByUser(ctx, userID); len(tokens) != 0 {
		t.Fatalf("expected tokens to be deleted, got %d", len(tokens))
	}
	if identities, _ := b.Identities().ListByUser(ctx, userID); len(identities) != 0 {
		t.Fatalf("expected identities to be deleted, got %d", len(identities))
	}
	if targets, _ := b.Targets().ListByUser(ctx, userID); len(targets) != 0 {
		t.Fatalf("expected targets to be deleted, got %d", len(targets))
	}
	if _, err := b.Authenticators().FindByUserType(ctx, userID, MFATypeTOTP); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected authenticator to be deleted, got %v", err)
	}

	// The address and provider account are free again.
	if _, err := h.engine.CompleteOAuth2(ctx, Guest(), "mock", "code-1", oauthState(t, h, Guest(), false)); err != nil {
		t.Fatalf("CompleteOAuth2 after delete failed: %v", err)
	}
}

func TestUpdateUserStatusBlocksLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, res := h.signUp(t, "a@x.com", "password1")

	u, err := h.engine.UpdateUserStatus(ctx, Server(), c.UserID(), store.StatusBlocked)
	if err != nil {
		t.Fatalf("UpdateUserStatus failed: %v", err)
	}
	if u.Status != store.StatusBlocked {
		t.Fatalf("expected blocked status, got %q", u.Status)
	}
	resolved, err := h.engine.ResolveCaller(ctx, res.Credential, RequestMeta{})
	if err != nil {
		t.Fatalf("ResolveCaller failed: %v", err)
	}
	if !resolved.IsGuest() {
		t.Fatalf("expected blocked user to resolve to a guest")
	}

	if _, err := h.engine.UpdateUserStatus(ctx, Server(), c.UserID(), store.StatusActive); err != nil {
		t.Fatalf("UpdateUserStatus failed: %v", err)
	}
	if _, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password1"); err != nil {
		t.Fatalf("login after unblock failed: %v", err)
	}
}

func TestUpdateUserLabels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	u, err := h.engine.UpdateUserLabels(ctx, Server(), c.UserID(), []string{"vip", "beta", "vip"})
	if err != nil {
		t.Fatalf("UpdateUserLabels failed: %v", err)
	}
	if len(u.Labels) != 2 {
		t.Fatalf("expected deduplicated labels, got %v", u.Labels)
	}
	_, err = h.engine.UpdateUserLabels(ctx, Server(), c.UserID(), []string{"not valid"})
	expectErr(t, err, ErrInvalidInput)
}

func TestUpdateUserPasswordAndMFA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	if _, err := h.engine.UpdateUserPassword(ctx, Server(), c.UserID(), "password2"); err != nil {
		t.Fatalf("UpdateUserPassword failed: %v", err)
	}
	if _, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "a@x.com", "password2"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	u, err := h.engine.UpdateUserMFA(ctx, Server(), c.UserID(), true)
	if err != nil {
		t.Fatalf("UpdateUserMFA failed: %v", err)
	}
	if !u.MFA {
		t.Fatalf("expected mfa to be enabled")
	}

	u, err = h.engine.UpdateUserPhoneVerification(ctx, Server(), c.UserID(), true)
	if err != nil {
		t.Fatalf("UpdateUserPhoneVerification failed: %v", err)
	}
	if !u.PhoneVerification {
		t.Fatalf("expected phone verification flag")
	}
}

func TestCreateUserSessionUsesServerProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	res, err := h.engine.CreateUserSession(ctx, Server(), c.UserID())
	if err != nil {
		t.Fatalf("CreateUserSession failed: %v", err)
	}
	if res.Session.Provider != session.ProviderServer || !res.Session.HasFactor(session.FactorServer) {
		t.Fatalf("unexpected session %+v", res.Session)
	}

	if err := h.engine.DeleteUserSession(ctx, Server(), c.UserID(), res.Session.ID); err != nil {
		t.Fatalf("DeleteUserSession failed: %v", err)
	}
	if err := h.engine.DeleteUserSessions(ctx, Server(), c.UserID()); err != nil {
		t.Fatalf("DeleteUserSessions failed: %v", err)
	}
	sessions, err := h.engine.ListUserSessions(ctx, Server(), c.UserID())
	if err != nil {
		t.Fatalf("ListUserSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestTargetLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.signUp(t, "a@x.com", "password1")

	target, err := h.engine.CreateTarget(ctx, Server(), c.UserID(), TargetInput{
		TargetID:     "phone-1",
		ProviderType: store.TargetPush,
		Identifier:   "device-token",
		Name:         "Pixel",
	})
	if err != nil {
		t.Fatalf("CreateTarget failed: %v", err)
	}
	if target.ID != "phone-1" {
		t.Fatalf("expected custom target id, got %q", target.ID)
	}

	_, err = h.engine.CreateTarget(ctx, Server(), c.UserID(), TargetInput{ProviderType: store.TargetEmail, Identifier: "a@x.com"})
	expectErr(t, err, ErrTargetAlreadyExists)

	name := "Phone"
	identifier := "new-token"
	updated, err := h.engine.UpdateTarget(ctx, Server(), c.UserID(), target.ID, TargetUpdate{Name: &name, Identifier: &identifier})
	if err != nil {
		t.Fatalf("UpdateTarget failed: %v", err)
	}
	if updated.Name != "Phone" || updated.Identifier != "new-token" {
		t.Fatalf("unexpected target %+v", updated)
	}

	if err := h.engine.DeleteTarget(ctx, Server(), c.UserID(), target.ID); err != nil {
		t.Fatalf("DeleteTarget failed: %v", err)
	}
	err = h.engine.DeleteTarget(ctx, Server(), c.UserID(), target.ID)
	expectErr(t, err, ErrTargetNotFound)
}

func TestDeleteIdentityAndAuthenticator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provider.AddUser("code-1", oauth2.Profile{ID: "gh-1", Email: "dev@x.com", EmailVerified: true})

	res, err := h.engine.CompleteOAuth2(ctx, Guest(), "mock", "code-1", oauthState(t, h, Guest(), false))
	if err != nil {
		t.Fatalf("CompleteOAuth2 failed: %v", err)
	}
	identities, err := h.engine.ListUserIdentities(ctx, Server(), res.User.ID)
	if err != nil || len(identities) != 1 {
		t.Fatalf("ListUserIdentities failed: %v (%d)", err, len(identities))
	}
	if err := h.engine.DeleteIdentity(ctx, Server(), identities[0].ID); err != nil {
		t.Fatalf("DeleteIdentity failed: %v", err)
	}
	err = h.engine.DeleteIdentity(ctx, Server(), identities[0].ID)
	expectErr(t, err, ErrIdentityNotFound)

	c := h.resolve(t, res.Session.Credential)
	if _, err := h.engine.CreateMFAAuthenticator(ctx, c, MFATypeTOTP); err != nil {
		t.Fatalf("CreateMFAAuthenticator failed: %v", err)
	}
	if err := h.engine.DeleteUserMFAAuthenticator(ctx, Server(), res.User.ID, MFATypeTOTP); err != nil {
		t.Fatalf("DeleteUserMFAAuthenticator failed: %v", err)
	}
}
