package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Scope identifies the request a context belongs to.
type Scope struct {
	RequestID    string
	UserID       string
	ConnectionID string
}

type scopeKey struct{}

const maxScopeValueLen = 128

// User ids may be e-mail addresses; request ids are uuids.
var scopeValuePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]+$`)

// loggable reports whether v may be written to a log line verbatim.
func loggable(v string) bool {
	return v != "" && len(v) <= maxScopeValueLen && scopeValuePattern.MatchString(v)
}

// WithScope attaches s to ctx. Values that are empty, too long or contain
// characters outside [a-zA-Z0-9_.@:-] are dropped.
func WithScope(ctx context.Context, s Scope) context.Context {
	clean := Scope{}
	if loggable(s.RequestID) {
		clean.RequestID = s.RequestID
	}
	if loggable(s.UserID) {
		clean.UserID = s.UserID
	}
	if loggable(s.ConnectionID) {
		clean.ConnectionID = s.ConnectionID
	}
	return context.WithValue(ctx, scopeKey{}, clean)
}

// ScopeFrom returns the scope attached to ctx.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// scopeFields returns the trace and scope fields of ctx.
func scopeFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
		)
	}
	s, ok := ScopeFrom(ctx)
	if !ok {
		return fields
	}
	if s.RequestID != "" {
		fields = append(fields, zap.String("request.id", s.RequestID))
	}
	if s.UserID != "" {
		fields = append(fields, zap.String("tenant.user", s.UserID))
	}
	if s.ConnectionID != "" {
		fields = append(fields, zap.String("tenant.connection", s.ConnectionID))
	}
	return fields
}
