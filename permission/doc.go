// Package permission provides the role and permission strings attached to
// every record goIdentity creates, and the check that evaluates them.
//
// # Model
//
// A role is "any", "guests", "users" or "user:<id>". A permission is an action
// applied to a role, written action("role"), for example read("user:42").
// A caller holding any listed role may perform the action.
//
// # Architecture boundaries
//
// This package is a pure in-memory helper with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goIdentity, jwt, or session.
package permission
