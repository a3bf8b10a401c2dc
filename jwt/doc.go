// Package jwt mints and parses short-lived account JWTs that carry the user
// id and session id of the session that requested them.
package jwt
