// Package internal groups the helpers that stay private to the portal client.
//
// # Sub-packages
//
//   - apitest: in-process fake of the portal API for tests and the demo CLI
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - inflight: at-most-one-in-flight guard for named actions
//   - logging: slog wrapper carrying the service defaults
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalauth API, except through
//     aliases declared there.
//   - Be imported by any package outside this module.
package internal
