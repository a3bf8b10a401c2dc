// Package internal contains helpers that are intentionally private to
// goIdentity: secure random secrets, one-time codes and secret hashing.
//
// # Sub-packages
//
//   - events: async domain event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
