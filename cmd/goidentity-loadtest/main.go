package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type account struct {
	userID     string
	credential string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (resolve + exchange)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		envFile     = flag.String("env-file", ".env", "optional dotenv file with GOIDENTITY_* settings")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logger.Fatal("load env file", zap.String("path", *envFile), zap.Error(err))
	}
	cfg, err := goIdentity.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "loadtest"
	}
	// Every exchange creates a session; keep eviction out of the measurement.
	cfg.Session.Limit = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	client, cleanup, err := connect(addr, logger)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer cleanup()

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	ctx := context.Background()
	accounts, err := seed(ctx, engine, *users)
	if err != nil {
		logger.Fatal("seed", zap.Error(err))
	}

	resolveStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		c, err := engine.ResolveCaller(ctx, a.credential, goIdentity.RequestMeta{})
		if err != nil {
			return err
		}
		if c.IsGuest() {
			return fmt.Errorf("credential for %s resolved to guest", a.userID)
		}
		return nil
	})

	exchangeStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		tok, err := engine.CreateUserToken(ctx, goIdentity.Server(), a.userID, goIdentity.UserTokenInput{})
		if err != nil {
			return err
		}
		_, err = engine.CreateSession(ctx, goIdentity.Guest(), a.userID, tok.Secret)
		return err
	})

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("exchange", exchangeStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("sessions created=%d tokens issued=%d tokens rejected=%d\n",
		snap.Counters[goIdentity.MetricSessionCreated],
		snap.Counters[goIdentity.MetricTokenIssued],
		snap.Counters[goIdentity.MetricTokenRejected],
	)
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

// seed creates passwordless users with one server-issued session each, so
// seeding does not pay for password hashing.
func seed(ctx context.Context, engine *goIdentity.Engine, n int) ([]account, error) {
	fmt.Printf("seeding %d users...\n", n)
	start := time.Now()

	out := make([]account, 0, n)
	for i := 0; i < n; i++ {
		u, err := engine.CreateUser(ctx, goIdentity.Server(), goIdentity.CreateUserInput{
			Email: fmt.Sprintf("load-%d@example.com", i),
		})
		if err != nil {
			return nil, fmt.Errorf("create user %d: %w", i, err)
		}
		s, err := engine.CreateUserSession(ctx, goIdentity.Server(), u.ID)
		if err != nil {
			return nil, fmt.Errorf("create session %d: %w", i, err)
		}
		out = append(out, account{userID: u.ID, credential: s.Credential})
	}

	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
