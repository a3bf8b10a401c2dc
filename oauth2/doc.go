// Package oauth2 defines the capability contract goIdentity expects from an
// OAuth2 provider adapter, a static registry keyed by provider name, the
// login state codec and a generic adapter built on golang.org/x/oauth2.
//
// The engine never speaks a provider wire protocol itself; it only
// sequences the calls of [Provider].
package oauth2
