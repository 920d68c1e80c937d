// Package portalauth is the client-side session and authorization layer of the
// healthcare portal. It signs patients, doctors and administrators in against the
// portal API, keeps the resulting session across restarts, attaches the bearer
// token to outbound calls, reacts to the API rejecting it, and decides which
// views the current role may open.
//
// A [Client] is assembled once with [New] and [Builder.Build], then
// [Client.Initialize] restores whatever session was persisted. Methods are safe
// for concurrent use.
//
// # Architecture boundaries
//
// portalauth is the composition root. The pieces it wires live in sub-packages:
// session (state and persistence), transport (the authenticated round tripper),
// route (guard decisions and landing paths) and role (the closed role set).
// Audit dispatch, logging and the in-flight guard are internal.
//
// The client never decides authorization on its own authority. The role checks
// exposed by [Client.Guard] only pick which view to show; the API's 401 and 403
// answers are authoritative and always win.
//
// # What this package must NOT do
//
//   - Log or audit tokens or passwords.
//   - Navigate directly; every redirect is an intent handed to the injected
//     navigator.
//   - Retry failed requests or refresh tokens.
//   - Reach for ambient singletons. Persistence, navigator and location are
//     required at Build time.
package portalauth
