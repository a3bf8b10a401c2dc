// Package middleware resolves a goIdentity Caller for each HTTP request and
// stores it in the request context.
//
// # Guards
//
//   - [Resolve] attaches a Caller to every request. Unknown credentials
//     become a guest.
//   - [RequireUser] additionally rejects guests and callers with a pending
//     MFA challenge.
//   - [RequireJWT] accepts only a bearer JWT minted by Engine.CreateJWT.
//
// Handlers read the caller back with [CallerFromContext] and pass it to
// engine operations. Authorization beyond "is there a user" stays in the
// engine.
package middleware
