// Package apitest runs an in-process fake of the portal API for tests and the
// demo CLI.
//
// It serves the same HTTP contract as the real backend under /api: login,
// register, profile, the three role dashboards and health. Passwords are stored
// as argon2id hashes, access tokens are HS256 JWTs with an eight hour lifetime,
// and the demo administrator (admin@healthcare.dev / Admin@1234) is seeded on
// start.
//
// Tests can force one-shot statuses on a route ([Server.FailNext]) and hold
// requests open ([Server.Hold]) to exercise concurrency.
//
// # What this package must NOT do
//
//   - Be imported by non-test library code.
//   - Persist anything beyond process lifetime.
package apitest
