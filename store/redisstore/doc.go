// Package redisstore implements the store contracts on Redis.
//
// # Layout
//
// Every record is a hash {v: revision, d: JSON document} under
// <prefix>:<collection>:<id>. Unique constraints are string keys under
// <prefix>:uniq:... holding the owning record id; secondary indexes are sets
// under <prefix>:idx:.... Creates, updates and deletes run as Lua scripts so
// the record, its unique keys and its index sets change together.
//
// A unique key whose owner record no longer exists is treated as free, so an
// expired or half-deleted record never blocks a new write.
//
// Records with an expiry (sessions, tokens, challenges) get a Redis TTL as a
// garbage-collection aid only. Callers still compare expiry themselves; set
// members that outlive their record are pruned on read.
package redisstore
