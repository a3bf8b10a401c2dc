package redisstore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goIdentity/store"
)

// Options configures a Backend.
type Options struct {
	// Prefix namespaces every key, one prefix per tenant.
	Prefix string
	// Now is used to derive Redis TTLs from record expiry. Defaults to time.Now.
	Now func() time.Time
}

type keyspace string

func (k keyspace) join(parts ...string) string {
	return string(k) + ":" + strings.Join(parts, ":")
}

// Backend is a store.Backend for one tenant.
type Backend struct {
	users          *userStore
	targets        *targetStore
	sessions       *sessionStore
	tokens         *tokenStore
	identities     *identityStore
	challenges     *challengeStore
	authenticators *authenticatorStore
}

var _ store.Backend = (*Backend)(nil)

// New returns a Backend using rdb.
func New(rdb redis.UniversalClient, opts Options) *Backend {
	if opts.Prefix == "" {
		opts.Prefix = "gid"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ks := keyspace(opts.Prefix)

	b := &Backend{}
	b.users = &userStore{c: &collection[store.User, *store.User]{
		rdb: rdb, keys: ks, name: "users", now: opts.Now,
		layout: layout[store.User]{
			uniques: func(u *store.User) []string {
				var out []string
				if u.Email != "" {
					out = append(out, ks.join("uniq", "users", "email", strings.ToLower(u.Email)))
				}
				if u.Phone != "" {
					out = append(out, ks.join("uniq", "users", "phone", u.Phone))
				}
				return out
			},
			sets: func(*store.User) []string { return []string{ks.join("idx", "users", "all")} },
		},
	}}
	b.targets = &targetStore{c: &collection[store.Target, *store.Target]{
		rdb: rdb, keys: ks, name: "targets", now: opts.Now,
		layout: layout[store.Target]{
			uniques: func(t *store.Target) []string {
				return []string{ks.join("uniq", "targets", t.ProviderType, t.Identifier)}
			},
			sets: func(t *store.Target) []string { return []string{ks.join("idx", "targets", "user", t.UserID)} },
		},
	}}
	b.sessions = &sessionStore{c: &collection[store.Session, *store.Session]{
		rdb: rdb, keys: ks, name: "sessions", now: opts.Now,
		layout: layout[store.Session]{
			sets:   func(s *store.Session) []string { return []string{ks.join("idx", "sessions", "user", s.UserID)} },
			expire: func(s *store.Session) time.Time { return s.Expire },
		},
	}}
	b.tokens = &tokenStore{c: &collection[store.Token, *store.Token]{
		rdb: rdb, keys: ks, name: "tokens", now: opts.Now,
		layout: layout[store.Token]{
			sets:   func(t *store.Token) []string { return []string{ks.join("idx", "tokens", "user", t.UserID)} },
			expire: func(t *store.Token) time.Time { return t.Expire },
		},
	}}
	b.identities = &identityStore{keys: ks, c: &collection[store.Identity, *store.Identity]{
		rdb: rdb, keys: ks, name: "identities", now: opts.Now,
		layout: layout[store.Identity]{
			uniques: func(i *store.Identity) []string {
				return []string{ks.join("uniq", "identities", i.Provider, i.ProviderUID)}
			},
			sets: func(i *store.Identity) []string {
				out := []string{ks.join("idx", "identities", "user", i.UserID)}
				if i.ProviderEmail != "" {
					out = append(out, ks.join("idx", "identities", "email", strings.ToLower(i.ProviderEmail)))
				}
				return out
			},
		},
	}}
	b.challenges = &challengeStore{c: &collection[store.Challenge, *store.Challenge]{
		rdb: rdb, keys: ks, name: "challenges", now: opts.Now,
		layout: layout[store.Challenge]{
			sets:   func(c *store.Challenge) []string { return []string{ks.join("idx", "challenges", "user", c.UserID)} },
			expire: func(c *store.Challenge) time.Time { return c.Expire },
		},
	}}
	b.authenticators = &authenticatorStore{keys: ks, c: &collection[store.Authenticator, *store.Authenticator]{
		rdb: rdb, keys: ks, name: "authenticators", now: opts.Now,
		layout: layout[store.Authenticator]{
			uniques: func(a *store.Authenticator) []string {
				return []string{ks.join("uniq", "authenticators", a.UserID, a.Type)}
			},
			sets: func(a *store.Authenticator) []string {
				return []string{ks.join("idx", "authenticators", "user", a.UserID)}
			},
		},
	}}
	return b
}

func (b *Backend) Users() store.Users { return b.users }
func (b *Backend) Targets() store.Targets { return b.targets }
func (b *Backend) Sessions() store.Sessions { return b.sessions }
func (b *Backend) Tokens() store.Tokens { return b.tokens }
func (b *Backend) Identities() store.Identities { return b.identities }
func (b *Backend) Challenges() store.Challenges { return b.challenges }
func (b *Backend) Authenticators() store.Authenticators { return b.authenticators }

type userStore struct {
	c *collection[store.User, *store.User]
}

func (s *userStore) Get(ctx context.Context, id string) (*store.User, error) {
	return s.c.get(ctx, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	if email == "" {
		return nil, store.ErrNotFound
	}
	return s.c.findUnique(ctx, s.c.keys.join("uniq", "users", "email", strings.ToLower(email)))
}

func (s *userStore) FindByPhone(ctx context.Context, phone string) (*store.User, error) {
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return s.c.findUnique(ctx, s.c.keys.join("uniq", "users", "phone", phone))
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	n, err := s.c.rdb.SCard(ctx, s.c.keys.join("idx", "users", "all")).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *userStore) Create(ctx context.Context, u *store.User) error { return s.c.create(ctx, u) }
func (s *userStore) Update(ctx context.Context, u *store.User) error { return s.c.update(ctx, u) }

func (s *userStore) Delete(ctx context.Context, id string) error {
	return mustExist(s.c.delete(ctx, id))
}

type targetStore struct {
	c *collection[store.Target, *store.Target]
}

func (s *targetStore) Get(ctx context.Context, id string) (*store.Target, error) {
	return s.c.get(ctx, id)
}

func (s *targetStore) FindByIdentifier(ctx context.Context, providerType, identifier string) (*store.Target, error) {
	return s.c.findUnique(ctx, s.c.keys.join("uniq", "targets", providerType, identifier))
}

func (s *targetStore) ListByUser(ctx context.Context, userID string) ([]*store.Target, error) {
	return s.c.listSet(ctx, s.c.keys.join("idx", "targets", "user", userID))
}

func (s *targetStore) Create(ctx context.Context, t *store.Target) error { return s.c.create(ctx, t) }
func (s *targetStore) Update(ctx context.Context, t *store.Target) error { return s.c.update(ctx, t) }

func (s *targetStore) Delete(ctx context.Context, id string) error {
	return mustExist(s.c.delete(ctx, id))
}

type sessionStore struct {
	c *collection[store.Session, *store.Session]
}

func (s *sessionStore) Get(ctx context.Context, id string) (*store.Session, error) {
	return s.c.get(ctx, id)
}

func (s *sessionStore) ListByUser(ctx context.Context, userID string) ([]*store.Session, error) {
	return s.c.listSet(ctx, s.c.keys.join("idx", "sessions", "user", userID))
}

func (s *sessionStore) Create(ctx context.Context, sess *store.Session) error {
	return s.c.create(ctx, sess)
}

func (s *sessionStore) Update(ctx context.Context, sess *store.Session) error {
	return s.c.update(ctx, sess)
}

func (s *sessionStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.c.delete(ctx, id)
}

type tokenStore struct {
	c *collection[store.Token, *store.Token]
}

func (s *tokenStore) Get(ctx context.Context, id string) (*store.Token, error) {
	return s.c.get(ctx, id)
}

func (s *tokenStore) ListByUser(ctx context.Context, userID string) ([]*store.Token, error) {
	return s.c.listSet(ctx, s.c.keys.join("idx", "tokens", "user", userID))
}

func (s *tokenStore) Create(ctx context.Context, t *store.Token) error { return s.c.create(ctx, t) }

func (s *tokenStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.c.delete(ctx, id)
}

type identityStore struct {
	keys keyspace
	c    *collection[store.Identity, *store.Identity]
}

func (s *identityStore) Get(ctx context.Context, id string) (*store.Identity, error) {
	return s.c.get(ctx, id)
}

func (s *identityStore) FindByProviderUID(ctx context.Context, provider, providerUID string) (*store.Identity, error) {
	return s.c.findUnique(ctx, s.keys.join("uniq", "identities", provider, providerUID))
}

func (s *identityStore) ListByProviderEmail(ctx context.Context, email string) ([]*store.Identity, error) {
	if email == "" {
		return []*store.Identity{}, nil
	}
	return s.c.listSet(ctx, s.keys.join("idx", "identities", "email", strings.ToLower(email)))
}

func (s *identityStore) ListByUser(ctx context.Context, userID string) ([]*store.Identity, error) {
	return s.c.listSet(ctx, s.keys.join("idx", "identities", "user", userID))
}

func (s *identityStore) Create(ctx context.Context, i *store.Identity) error {
	return s.c.create(ctx, i)
}

func (s *identityStore) Update(ctx context.Context, i *store.Identity) error {
	return s.c.update(ctx, i)
}

func (s *identityStore) Delete(ctx context.Context, id string) error {
	return mustExist(s.c.delete(ctx, id))
}

type challengeStore struct {
	c *collection[store.Challenge, *store.Challenge]
}

func (s *challengeStore) Get(ctx context.Context, id string) (*store.Challenge, error) {
	return s.c.get(ctx, id)
}

func (s *challengeStore) ListByUser(ctx context.Context, userID string) ([]*store.Challenge, error) {
	return s.c.listSet(ctx, s.c.keys.join("idx", "challenges", "user", userID))
}

func (s *challengeStore) Create(ctx context.Context, c *store.Challenge) error {
	return s.c.create(ctx, c)
}

func (s *challengeStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.c.delete(ctx, id)
}

type authenticatorStore struct {
	keys keyspace
	c    *collection[store.Authenticator, *store.Authenticator]
}

func (s *authenticatorStore) FindByUserType(ctx context.Context, userID, typ string) (*store.Authenticator, error) {
	return s.c.findUnique(ctx, s.keys.join("uniq", "authenticators", userID, typ))
}

func (s *authenticatorStore) ListByUser(ctx context.Context, userID string) ([]*store.Authenticator, error) {
	return s.c.listSet(ctx, s.keys.join("idx", "authenticators", "user", userID))
}

func (s *authenticatorStore) Create(ctx context.Context, a *store.Authenticator) error {
	return s.c.create(ctx, a)
}

func (s *authenticatorStore) Update(ctx context.Context, a *store.Authenticator) error {
	return s.c.update(ctx, a)
}

func (s *authenticatorStore) Delete(ctx context.Context, id string) error {
	return mustExist(s.c.delete(ctx, id))
}

func mustExist(removed bool, err error) error {
	if err != nil {
		return err
	}
	if !removed {
		return store.ErrNotFound
	}
	return nil
}
