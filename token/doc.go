// Package token issues and consumes single-use secrets.
//
// A token moves Created -> (Consumed | Expired); both ends are terminal. Only
// the sha256 of the plaintext is persisted. [Issuer.Consume] deletes the
// record before returning it, and only the caller whose delete removed the
// record succeeds, so a secret can gate at most one state change.
package token
