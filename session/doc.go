// Package session owns the client-side session: the token + user pair, its persisted
// two-entry form, the persistence backends, and the [Store] state machine that is the
// sole writer of both.
//
// # States
//
// A [Store] is either Anonymous or Authenticated(role). Transitions are linearized:
// the persisted pair is written or cleared before the in-memory value changes and
// before observers are notified.
//
// # Persisted form
//
// Two entries, a raw token and a JSON user record, always written and cleared
// together. On read, a missing or unparsable half makes the whole session absent.
//
// # Architecture boundaries
//
// This package does not talk to the portal API and does not decide routing. Login,
// registration and transport-driven invalidation call into the [Store] from the
// root package and the transport package.
//
// # What this package must NOT do
//
//   - Import the root package, route, or transport (no upward imports).
//   - Log bearer tokens.
//   - Leave a persisted token without its user, or the reverse.
package session
