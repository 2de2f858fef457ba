package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldToolset    = "toolset"
	FieldTool       = "tool"
	FieldEndpoint   = "endpoint"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventToolInvoke        = "tool_invoke"
	EventToolFailure       = "tool_failure"
	EventRemoteCall        = "remote_call"
	EventRemoteFailure     = "remote_failure"
	EventStatusCacheHit    = "status_cache_hit"
	EventStatusCacheStale  = "status_cache_stale"
	EventStatusCacheWrite  = "status_cache_write_failure"
	EventPrerequisiteCheck = "prerequisite_check"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ToolsetField(name string) zap.Field {
	return zap.String(FieldToolset, name)
}

func ToolField(name string) zap.Field {
	return zap.String(FieldTool, name)
}

func EndpointField(url string) zap.Field {
	return zap.String(FieldEndpoint, url)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
