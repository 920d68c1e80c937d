package internaldefs

import (
	portalauth "github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "portalauth_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: portalauth.MetricLoginSuccess, Name: "portalauth_login_success_total", Help: "Logins that established a session."},
	{ID: portalauth.MetricLoginFailure, Name: "portalauth_login_failure_total", Help: "Logins rejected by the API or the network."},
	{ID: portalauth.MetricRegisterSuccess, Name: "portalauth_register_success_total", Help: "Registrations that established a session."},
	{ID: portalauth.MetricRegisterFailure, Name: "portalauth_register_failure_total", Help: "Registrations rejected by the API or the network."},
	{ID: portalauth.MetricSessionRestored, Name: "portalauth_session_restored_total", Help: "Sessions restored from persistence at startup."},
	{ID: portalauth.MetricSessionCreated, Name: "portalauth_session_created_total", Help: "Sessions created by login or registration."},
	{ID: portalauth.MetricSessionInvalidated, Name: "portalauth_session_invalidated_total", Help: "Sessions dropped after the API rejected the token."},
	{ID: portalauth.MetricLogout, Name: "portalauth_logout_total", Help: "Explicit logout calls."},
	{ID: portalauth.MetricForbidden, Name: "portalauth_forbidden_total", Help: "Protected calls answered with 403."},
	{ID: portalauth.MetricRequestInFlight, Name: "portalauth_request_in_flight_total", Help: "Actions rejected because the same action was running."},
	{ID: portalauth.MetricValidationFailure, Name: "portalauth_validation_failure_total", Help: "Forms rejected before any request was sent."},
}

// HistogramDefs lists every histogram in exposition order.
var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricRequestLatency, Name: "portalauth_request_latency_seconds", Help: "API round-trip latency."},
}

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors [HistogramBounds] in a form valid inside
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling a missing
// histogram.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// SessionGaugeName reports the current session, one series per role.
const SessionGaugeName = "portalauth_session_authenticated"

// SessionGaugeHelp describes [SessionGaugeName].
const SessionGaugeHelp = "1 for the role of the current session, 0 for every other role."

// StateSource is implemented by sources that can report the session state.
type StateSource interface {
	State() session.State
}

// RoleValue is one series of the session gauge.
type RoleValue struct {
	Role  role.Role
	Value int64
}

// SessionGauge expands st into one series per known role.
func SessionGauge(st session.State) []RoleValue {
	roles := role.All()
	out := make([]RoleValue, len(roles))
	for i, r := range roles {
		out[i] = RoleValue{Role: r}
		if st.Authenticated && st.Role == r {
			out[i].Value = 1
		}
	}
	return out
}
