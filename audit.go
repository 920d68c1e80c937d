package portalauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/audit"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

// AuditEvent is one audit record. Tokens never appear in events.
type AuditEvent = audit.Event

// AuditSink receives audit events from the client's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes events through the structured logger. It is the default
// sink when audit is enabled and none is configured.
type LogSink = audit.LogSink

// MultiSink delivers every event to each of its sinks.
type MultiSink = audit.MultiSink

// NewLogSink returns a [LogSink] writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return audit.NewLogSink(logger)
}

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditSessionRestored    = audit.TypeSessionRestored
	AuditLoginSuccess       = audit.TypeLoginSuccess
	AuditLoginFailure       = audit.TypeLoginFailure
	AuditRegisterSuccess    = audit.TypeRegisterSuccess
	AuditRegisterFailure    = audit.TypeRegisterFailure
	AuditLogout             = audit.TypeLogout
	AuditSessionInvalidated = audit.TypeSessionInvalidated
	AuditAccessForbidden    = audit.TypeAccessForbidden
)

// AuditErrorCode is the stable error label carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrNetwork            AuditErrorCode = "network"
	auditErrServer             AuditErrorCode = "server_error"
	auditErrRequestFailed      AuditErrorCode = "request_failed"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInFlight           AuditErrorCode = "in_flight"
	auditErrPersistFailed      AuditErrorCode = "session_persist_failed"
	auditErrInvalidationFailed AuditErrorCode = "session_invalidation_failed"
	auditErrPersistenceDown    AuditErrorCode = "persistence_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, ErrServer):
		return auditErrServer
	case errors.Is(err, ErrRequestFailed):
		return auditErrRequestFailed
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrRequestInFlight):
		return auditErrInFlight
	case errors.Is(err, ErrSessionPersistFailed):
		return auditErrPersistFailed
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrInvalidationFailed
	case errors.Is(err, session.ErrPersistenceUnavailable):
		return auditErrPersistenceDown
	default:
		return auditErrInternal
	}
}

func (c *Client) emitAudit(ctx context.Context, event AuditEvent, err error) {
	if c == nil || c.audit == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestIDFromContext(ctx)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	c.audit.Emit(ctx, event)
}

func userEvent(eventType string, user session.User, success bool) AuditEvent {
	ev := AuditEvent{EventType: eventType, Success: success}
	if user.ID != 0 {
		ev.UserID = strconv.FormatInt(user.ID, 10)
		ev.Role = string(user.Role)
	}
	return ev
}
