// Package route holds the client-side authorization decisions of the portal: the
// route guard, the role redirect resolver, the protected route table, and the
// navigation intent types used to act on them.
//
// # Decisions
//
// [Decide] is pure. Given a capability set and the current session it returns
// Allow, a redirect to the login view, or a redirect to the unauthorized view.
// [Guard] does the same and additionally emits the redirect through a [Navigator].
//
// # Navigation
//
// Nothing in this module navigates directly. Redirects are [Intent] values handed
// to an injected [Navigator]; [Recorder] is an in-memory implementation that
// tracks the current location for tests and command-line hosts.
//
// # Architecture boundaries
//
// The role check here is a user-experience convenience. The portal API enforces
// authorization independently and its 403 responses remain authoritative.
//
// # What this package must NOT do
//
//   - Read or write the session store (callers pass the session in).
//   - Perform network I/O.
//   - Keep hidden state between decisions.
package route
