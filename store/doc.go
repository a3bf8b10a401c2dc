// Package store defines the typed records persisted by goIdentity and the
// per-entity store contracts the engine reads and writes through.
//
// # Architecture boundaries
//
// Records are plain structs; they carry no behaviour beyond small helpers.
// Uniqueness (one email per user, one identity per provider subject, one
// target per identifier, one authenticator per user and type) is owned by
// the implementation: a write that would break a constraint must fail with
// [ErrDuplicate]. The engine never treats its own pre-checks as a substitute.
//
// # What this package must NOT do
//
//   - Import goIdentity or any engine package.
//   - Perform I/O (implementations live in sub-packages such as redisstore).
package store
