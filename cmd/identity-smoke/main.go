// Command identity-smoke drives every login flow once against a real Redis
// (REDIS_ADDR) or an in-process miniredis, and exits non-zero on the first
// failing step.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/oauth2"
)

// providerEnv optionally registers a real provider next to the mock one.
type providerEnv struct {
	Name         string   `env:"SMOKE_OAUTH2_NAME"`
	ClientID     string   `env:"SMOKE_OAUTH2_CLIENT_ID"`
	ClientSecret string   `env:"SMOKE_OAUTH2_CLIENT_SECRET"`
	AuthURL      string   `env:"SMOKE_OAUTH2_AUTH_URL"`
	TokenURL     string   `env:"SMOKE_OAUTH2_TOKEN_URL"`
	UserInfoURL  string   `env:"SMOKE_OAUTH2_USERINFO_URL"`
	RedirectURL  string   `env:"SMOKE_OAUTH2_REDIRECT_URL"`
	Scopes       []string `env:"SMOKE_OAUTH2_SCOPES" envSeparator:","`
}

type smoke struct {
	engine *goIdentity.Engine
	queue  *messaging.ChannelQueue
	mock   *oauth2.Mock

	email    string
	password string
	userID   string
}

func main() {
	_ = godotenv.Load()

	logger, err := newLogger(logConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("smoke failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("smoke passed")
}

func run(logger *zap.Logger) error {
	cfg, err := goIdentity.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "identity-smoke"
	}
	cfg.Metrics.Enabled = true

	client, cleanup, err := connect(os.Getenv("REDIS_ADDR"), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	providers, mock, err := buildProviders()
	if err != nil {
		return err
	}

	queue := messaging.NewChannelQueue(64)
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		WithQueue(queue).
		WithEventSink(goIdentity.NewZapSink(logger.Named("events"))).
		WithOAuth2Providers(providers...).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	s := &smoke{
		engine:   engine,
		queue:    queue,
		mock:     mock,
		email:    fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano()),
		password: "smoke-password-1",
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"email-password", s.emailPassword},
		// Token logins verify the email, so this runs first.
		{"verification", s.verification},
		{"email-otp", s.emailOTP},
		{"recovery", s.recovery},
		{"mfa-email", s.mfaEmail},
		{"oauth2", s.oauth2},
		{"jwt", s.jwt},
	}

	ctx := context.Background()
	for _, step := range steps {
		start := time.Now()
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		logger.Info("step ok", zap.String("step", step.name), zap.Duration("took", time.Since(start)))
	}

	snap := engine.MetricsSnapshot()
	logger.Info("metrics",
		zap.Uint64("sessions_created", snap.Counters[goIdentity.MetricSessionCreated]),
		zap.Uint64("tokens_consumed", snap.Counters[goIdentity.MetricTokenConsumed]),
		zap.Uint64("mfa_verified", snap.Counters[goIdentity.MetricMFAChallengeVerified]),
		zap.Uint64("events_dropped", engine.EventsDropped()),
	)
	return nil
}

func connect(addr string, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", zap.String("addr", addr))
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", zap.String("addr", mr.Addr()))
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildProviders() ([]oauth2.Provider, *oauth2.Mock, error) {
	mock := oauth2.NewMock("smoke", time.Hour, nil)
	providers := []oauth2.Provider{mock}

	var pe providerEnv
	if err := env.Parse(&pe); err != nil {
		return nil, nil, fmt.Errorf("parse provider env: %w", err)
	}
	if pe.Name == "" {
		return providers, mock, nil
	}
	g, err := oauth2.NewGeneric(oauth2.GenericConfig{
		Name:         pe.Name,
		ClientID:     pe.ClientID,
		ClientSecret: pe.ClientSecret,
		AuthURL:      pe.AuthURL,
		TokenURL:     pe.TokenURL,
		UserInfoURL:  pe.UserInfoURL,
		RedirectURL:  pe.RedirectURL,
		Scopes:       pe.Scopes,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("provider %s: %w", pe.Name, err)
	}
	return append(providers, g), mock, nil
}

// message waits for the next message addressed to recipient.
func (s *smoke) message(recipient string) (messaging.Message, error) {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.queue.Messages():
			if msg.Recipient == recipient {
				return msg, nil
			}
		case <-timeout:
			return messaging.Message{}, fmt.Errorf("no message for %s", recipient)
		}
	}
}

func (s *smoke) login(ctx context.Context) (goIdentity.Caller, error) {
	res, err := s.engine.CreateEmailPasswordSession(ctx, goIdentity.Guest(), s.email, s.password)
	if err != nil {
		return goIdentity.Caller{}, err
	}
	return s.engine.ResolveCaller(ctx, res.Credential, goIdentity.RequestMeta{UserAgent: "identity-smoke"})
}

func (s *smoke) emailPassword(ctx context.Context) error {
	u, err := s.engine.CreateAccount(ctx, goIdentity.Guest(), goIdentity.CreateAccountInput{
		Email:    s.email,
		Password: s.password,
		Name:     "Smoke",
	})
	if err != nil {
		return err
	}
	s.userID = u.ID

	c, err := s.login(ctx)
	if err != nil {
		return err
	}
	if c.UserID() != s.userID {
		return errors.New("session resolved to a different user")
	}
	return nil
}

func (s *smoke) emailOTP(ctx context.Context) error {
	res, err := s.engine.CreateEmailToken(ctx, goIdentity.Guest(), goIdentity.EmailTokenInput{Email: s.email, Phrase: true})
	if err != nil {
		return err
	}
	msg, err := s.message(s.email)
	if err != nil {
		return err
	}
	if _, err := s.engine.CreateSession(ctx, goIdentity.Guest(), res.Token.UserID, msg.Variables["secret"]); err != nil {
		return err
	}
	if _, err := s.engine.CreateSession(ctx, goIdentity.Guest(), res.Token.UserID, msg.Variables["secret"]); !errors.Is(err, goIdentity.ErrInvalidToken) {
		return fmt.Errorf("token reuse: expected ErrInvalidToken, got %v", err)
	}
	return nil
}

func (s *smoke) recovery(ctx context.Context) error {
	if _, err := s.engine.CreateRecovery(ctx, goIdentity.Guest(), s.email, "https://smoke.invalid/reset"); err != nil {
		return err
	}
	msg, err := s.message(s.email)
	if err != nil {
		return err
	}
	s.password = "smoke-password-2"
	if _, err := s.engine.UpdateRecovery(ctx, goIdentity.Guest(), s.userID, msg.Variables["secret"], s.password); err != nil {
		return err
	}
	_, err = s.login(ctx)
	return err
}

func (s *smoke) verification(ctx context.Context) error {
	c, err := s.login(ctx)
	if err != nil {
		return err
	}
	if _, err := s.engine.CreateVerification(ctx, c, "https://smoke.invalid/verify"); err != nil {
		return err
	}
	msg, err := s.message(s.email)
	if err != nil {
		return err
	}
	u, err := s.engine.UpdateVerification(ctx, goIdentity.Guest(), s.userID, msg.Variables["secret"])
	if err != nil {
		return err
	}
	if !u.EmailVerification {
		return errors.New("email not verified")
	}
	return nil
}

func (s *smoke) mfaEmail(ctx context.Context) error {
	c, err := s.login(ctx)
	if err != nil {
		return err
	}
	if _, err := s.engine.UpdateMFA(ctx, c, true); err != nil {
		return err
	}

	pending, err := s.login(ctx)
	if err != nil {
		return err
	}
	if ok, err := s.engine.MFAPending(ctx, pending); err != nil || !ok {
		return fmt.Errorf("expected pending mfa, got %v %v", ok, err)
	}
	ch, err := s.engine.CreateMFAChallenge(ctx, pending, goIdentity.MFATypeEmail)
	if err != nil {
		return err
	}
	msg, err := s.message(s.email)
	if err != nil {
		return err
	}
	if _, err := s.engine.UpdateMFAChallenge(ctx, pending, ch.ID, msg.Variables["code"]); err != nil {
		return err
	}

	// Leave MFA off for the remaining steps.
	_, err = s.engine.UpdateUserMFA(ctx, goIdentity.Server(), s.userID, false)
	return err
}

func (s *smoke) oauth2(ctx context.Context) error {
	s.mock.AddUser("smoke-code", oauth2.Profile{
		ID:            "smoke-uid",
		Email:         s.email,
		Name:          "Smoke",
		EmailVerified: true,
	})

	raw, err := s.engine.CreateOAuth2URL(ctx, goIdentity.Guest(), "smoke", goIdentity.OAuth2Request{
		Success: "https://smoke.invalid/ok",
		Failure: "https://smoke.invalid/fail",
	})
	if err != nil {
		return err
	}
	loginURL, err := url.Parse(raw)
	if err != nil {
		return err
	}

	res, err := s.engine.CompleteOAuth2(ctx, goIdentity.Guest(), "smoke", "smoke-code", loginURL.Query().Get("state"))
	if err != nil {
		return err
	}
	if res.User.ID != s.userID {
		return errors.New("verified provider email did not link to the existing user")
	}
	return nil
}

func (s *smoke) jwt(ctx context.Context) error {
	c, err := s.login(ctx)
	if err != nil {
		return err
	}
	raw, err := s.engine.CreateJWT(ctx, c)
	if err != nil {
		return err
	}
	back, err := s.engine.VerifyJWT(ctx, raw, goIdentity.RequestMeta{})
	if err != nil {
		return err
	}
	if back.UserID() != s.userID {
		return errors.New("jwt resolved to a different user")
	}
	return nil
}
