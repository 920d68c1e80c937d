// Package prometheus renders portal client metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts a [portalauth.Client] and exposes an
// [http.Handler]. Counter names are prefixed portalauth_*_total; the single
// histogram is portalauth_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
