// Package goIdentity is a multi-tenant identity engine: credential storage,
// single-use login tokens, sessions, multi-factor authentication and OAuth2
// identity linking, all persisted in Redis.
//
// Every operation takes an explicit [Caller]. A request handler resolves the
// caller once with [Engine.ResolveCaller] (or [Engine.VerifyJWT]) and passes
// it down; nothing is read from ambient per-request state. Server callers are
// elevated and may use the users and targets operations.
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config]
// and result types. Records live in package store, the Redis implementation
// in store/redisstore. Hashing, token issuance, TOTP, session encoding and
// OAuth2 providers are leaf packages that never import goIdentity.
//
// # Concurrency
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Single-use secrets (tokens, MFA challenges, recovery
// codes) are consumed by deleting the record first and acting only when the
// delete removed it, so concurrent redemptions succeed at most once.
//
// # Errors
//
// Every returned error matches one kind with errors.Is: [ErrNotFound],
// [ErrInvalidCredentials], [ErrInvalidToken], [ErrAlreadyExists],
// [ErrLimitExceeded], [ErrDisabled], [ErrUnauthorized],
// [ErrPersonalDataRejected], [ErrPasswordRecentlyUsed], [ErrInvalidInput],
// [ErrConflict] or [ErrUnavailable].
package goIdentity
