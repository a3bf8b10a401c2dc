package goIdentity

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/events"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/oauth2"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/redisstore"
	"github.com/MrEthical07/goIdentity/token"
	"github.com/MrEthical07/goIdentity/totp"
)

// Builder assembles an Engine for one tenant. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	backend   store.Backend
	logger    *zap.Logger
	now       func() time.Time
	queue     messaging.Queue
	detector  session.Detector
	geo       session.GeoLocator
	providers []oauth2.Provider
	sink      EventSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores every entity in client under Config.Store.Prefix and,
// unless WithQueue is used, queues outbound messages on Redis lists.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend replaces the Redis store with backend.
func (b *Builder) WithBackend(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for expiry decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithQueue(q messaging.Queue) *Builder {
	b.queue = q
	return b
}

func (b *Builder) WithDetector(d session.Detector) *Builder {
	b.detector = d
	return b
}

func (b *Builder) WithGeoLocator(g session.GeoLocator) *Builder {
	b.geo = g
	return b
}

func (b *Builder) WithOAuth2Providers(providers ...oauth2.Provider) *Builder {
	b.providers = append(b.providers, providers...)
	return b
}

// WithEventSink receives domain events. The default sink logs them with the
// engine logger.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := b.backend
	if backend == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or store backend required")
		}
		backend = redisstore.New(b.redis, redisstore.Options{Prefix: cfg.Store.Prefix, Now: now})
	}

	queue := b.queue
	if queue == nil {
		if b.redis != nil {
			queue = messaging.NewRedisQueue(b.redis, cfg.Store.Prefix+":messages")
		} else {
			queue = messaging.NopQueue{}
		}
	}

	detector := b.detector
	if detector == nil {
		detector = session.NopDetector{}
	}
	geo := b.geo
	if geo == nil {
		geo = session.NopGeoLocator{}
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		now:       now,
		store:     backend,
		queue:     queue,
		detector:  detector,
		geo:       geo,
		providers: oauth2.NewRegistry(b.providers...),
		metrics:   NewMetrics(cfg.Metrics),
	}

	policies := token.DefaultPolicies(cfg.Session.Duration)
	policies[store.TokenMagicURL] = token.Policy{Length: policies[store.TokenMagicURL].Length, TTL: cfg.Tokens.MagicURLTTL}
	policies[store.TokenEmail] = token.Policy{Length: cfg.Tokens.OTPLength, TTL: cfg.Tokens.OTPTTL, Numeric: true}
	policies[store.TokenPhone] = token.Policy{Length: cfg.Tokens.OTPLength, TTL: cfg.Tokens.OTPTTL, Numeric: true}
	policies[store.TokenRecovery] = token.Policy{Length: policies[store.TokenRecovery].Length, TTL: cfg.Tokens.RecoveryTTL}
	policies[store.TokenVerification] = token.Policy{Length: policies[store.TokenVerification].Length, TTL: cfg.Tokens.VerificationTTL}
	engine.tokens = token.NewIssuer(backend.Tokens(), policies, now)

	engine.totp = totp.New(totp.Config{
		Issuer:    cfg.MFA.Issuer,
		Digits:    cfg.MFA.TOTPDigits,
		Period:    cfg.MFA.TOTPPeriod,
		Algorithm: cfg.MFA.TOTPAlgorithm,
		Skew:      cfg.MFA.TOTPSkew,
	})

	jwtCfg := jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Now:           now,
	}
	if jwtCfg.SigningMethod == jwt.MethodHS256 {
		jwtCfg.PrivateKey = []byte(cfg.JWT.Secret)
		if len(jwtCfg.PrivateKey) == 0 {
			// Tokens from an ephemeral key do not survive a restart.
			jwtCfg.PrivateKey = make([]byte, 32)
			if _, err := rand.Read(jwtCfg.PrivateKey); err != nil {
				return nil, err
			}
		}
	}
	jm, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}
	engine.jwt = jm

	sink := b.sink
	if sink == nil {
		sink = events.NewZapSink(logger)
	}
	engine.events = events.NewDispatcher(events.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
	}, sink)
	engine.events.OnDrop(func(ev events.Event) {
		logger.Warn("domain event dropped", zap.String("event", ev.Name), zap.String("user_id", ev.UserID))
	})

	b.built = true
	return engine, nil
}
