package store

import "context"

// Users persists user records. Email and phone are unique.
type Users interface {
	Get(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// Targets persists contact channels. (ProviderType, Identifier) is unique.
type Targets interface {
	Get(ctx context.Context, id string) (*Target, error)
	FindByIdentifier(ctx context.Context, providerType, identifier string) (*Target, error)
	ListByUser(ctx context.Context, userID string) ([]*Target, error)
	Create(ctx context.Context, target *Target) error
	Update(ctx context.Context, target *Target) error
	Delete(ctx context.Context, id string) error
}

// Sessions persists login sessions.
type Sessions interface {
	Get(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	// Delete reports whether this call removed the record.
	Delete(ctx context.Context, id string) (bool, error)
}

// Tokens persists single-use secrets.
type Tokens interface {
	Get(ctx context.Context, id string) (*Token, error)
	ListByUser(ctx context.Context, userID string) ([]*Token, error)
	Create(ctx context.Context, token *Token) error
	// Delete reports whether this call removed the record. Consumers rely on
	// it to guarantee a token is spent exactly once.
	Delete(ctx context.Context, id string) (bool, error)
}

// Identities persists OAuth2 bindings. (Provider, ProviderUID) is unique.
type Identities interface {
	Get(ctx context.Context, id string) (*Identity, error)
	FindByProviderUID(ctx context.Context, provider, providerUID string) (*Identity, error)
	ListByProviderEmail(ctx context.Context, email string) ([]*Identity, error)
	ListByUser(ctx context.Context, userID string) ([]*Identity, error)
	Create(ctx context.Context, identity *Identity) error
	Update(ctx context.Context, identity *Identity) error
	Delete(ctx context.Context, id string) error
}

// Challenges persists in-flight MFA challenges.
type Challenges interface {
	Get(ctx context.Context, id string) (*Challenge, error)
	ListByUser(ctx context.Context, userID string) ([]*Challenge, error)
	Create(ctx context.Context, challenge *Challenge) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Authenticators persists MFA methods. (UserID, Type) is unique.
type Authenticators interface {
	FindByUserType(ctx context.Context, userID, typ string) (*Authenticator, error)
	ListByUser(ctx context.Context, userID string) ([]*Authenticator, error)
	Create(ctx context.Context, authenticator *Authenticator) error
	Update(ctx context.Context, authenticator *Authenticator) error
	Delete(ctx context.Context, id string) error
}

// Backend groups the per-entity stores of one tenant.
type Backend interface {
	Users() Users
	Targets() Targets
	Sessions() Sessions
	Tokens() Tokens
	Identities() Identities
	Challenges() Challenges
	Authenticators() Authenticators
}
