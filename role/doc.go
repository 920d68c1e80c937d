// Package role defines the closed set of portal roles and the bitmask capability
// sets used by route authorization.
//
// # Capability sets
//
// A [Set] is a fixed-width bitmask with one bit per known role. The zero value is
// unrestricted and admits any authenticated role; [Only] builds a restricted set,
// which may be empty and then admits nobody.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Session and route
// packages consume it; it imports neither.
//
// # What this package must NOT do
//
//   - Access storage or the network.
//   - Import session, route, or transport.
//   - Grow the role set at runtime.
package role
