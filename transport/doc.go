// Package transport provides the authenticated [http.RoundTripper] every portal
// API call goes through.
//
// # Outbound
//
// Requests to protected API paths carry "Authorization: Bearer <token>" when a
// session exists and no Authorization header otherwise. Public paths (login,
// register and health by default) are sent undecorated. Every request gets an
// X-Request-ID unless the caller set one.
//
// # Inbound
//
//   - 401 on a protected path: the session is invalidated, then a replacing
//     navigation to the login view is emitted unless the user is already there.
//   - 403 on a protected path: a replacing navigation to the unauthorized view is
//     emitted. The session is untouched.
//   - Anything else, including transport failures, is returned unchanged.
//
// The response is always returned to the caller as well. Requests are never
// retried.
//
// # What this package must NOT do
//
//   - Read or write persistence directly (invalidation goes through [Invalidator]).
//   - Decode response bodies.
//   - Log bearer tokens.
package transport
