// Package session holds the pure session rules of goIdentity: the transport
// credential codec, current-session detection, factor sets, expiry and the
// per-user session limit.
//
// # Transport credential
//
// The value carried in a cookie or header is base64(JSON{"id","secret"}): the
// user id plus the plaintext session secret. Stored sessions only hold the
// sha256 of the secret, so the request's own session is found by hashing the
// ambient secret and comparing against each of the user's sessions.
//
// # Architecture boundaries
//
// This package does not persist anything; the Engine loads and writes records
// through the store package.
//
// # What this package must NOT do
//
//   - Import goIdentity, jwt, or permission (no upward imports).
//   - Store plaintext secrets in session records.
package session
