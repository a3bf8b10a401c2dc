package goIdentity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/oauth2"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	queue    *messaging.ChannelQueue
	events   *ChannelSink
	provider *oauth2.Mock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// testConfig keeps argon2 cheap; the defaults would dominate test time.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.MemoryCost = 1024
	cfg.Password.TimeCost = 1
	cfg.Password.Threads = 1
	cfg.JWT.Secret = "test-secret"
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := messaging.NewChannelQueue(256)
	sink := NewChannelSink(1024)
	provider := oauth2.NewMock("mock", time.Hour, clock.Now)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clock.Now).
		WithQueue(queue).
		WithEventSink(sink).
		WithOAuth2Providers(provider).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &harness{
		engine:   engine,
		mr:       mr,
		rdb:      rdb,
		clock:    clock,
		queue:    queue,
		events:   sink,
		provider: provider,
	}
}

// lastMessage drains the queue and returns the newest message for recipient.
func (h *harness) lastMessage(t *testing.T, recipient string) messaging.Message {
	t.Helper()

	var (
		found messaging.Message
		ok    bool
	)
drain:
	for {
		select {
		case msg := <-h.queue.Messages():
			if msg.Recipient == recipient {
				found, ok = msg, true
			}
		default:
			break drain
		}
	}
	if !ok {
		t.Fatalf("no message queued for %s", recipient)
	}
	return found
}

// signUp creates an email/password account and logs it in.
func (h *harness) signUp(t *testing.T, email, pass string) (Caller, *SessionResult) {
	t.Helper()

	ctx := context.Background()
	if _, err := h.engine.CreateAccount(ctx, Guest(), CreateAccountInput{Email: email, Password: pass}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	res, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), email, pass)
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession failed: %v", err)
	}
	return h.resolve(t, res.Credential), res
}

func (h *harness) resolve(t *testing.T, credential string) Caller {
	t.Helper()

	c, err := h.engine.ResolveCaller(context.Background(), credential, RequestMeta{IP: "127.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("ResolveCaller failed: %v", err)
	}
	if c.IsGuest() {
		t.Fatalf("expected credential to resolve to a user")
	}
	return c
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
