// Package jwt reads and issues the bearer tokens used by the portal API.
//
// The client never verifies tokens: the API is the authority. [Inspect] and
// [Expired] decode claims without checking the signature so that a session
// persisted with an already expired token can be discarded at startup instead of
// producing a guaranteed 401 on the first request. Tokens that are not JWTs are
// treated as opaque and never reported as expired.
//
// [Manager] signs and verifies tokens. It backs the in-process test API and is
// not used on the client request path.
//
// # What this package must NOT do
//
//   - Trust unverified claims for authorization decisions.
//   - Log or persist token strings.
package jwt
