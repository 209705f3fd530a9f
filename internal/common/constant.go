// Package common contains shared constants and sentinel errors used across
// taskauth components.
package common

// AuthorizationHeaderName is the HTTP header (and lower-cased gRPC metadata
// key) carrying the bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the authorization header value.
const BearerPrefix = "Bearer "

// Account roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
