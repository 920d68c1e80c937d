package portalauth

import (
	"context"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/transport"
)

type requestIDContextKey struct{}

// WithRequestID attaches a correlation id to ctx. Requests made with ctx carry
// it in the X-Request-ID header instead of a generated one, and audit events
// emitted for the call record it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// RequestIDHeader is the header carrying the request correlation id.
const RequestIDHeader = transport.RequestIDHeader
