package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dataplane-backend/internal/pipeline"
)

var defaultSensitive = []string{"password", "token", "secret", "apikey", "authorization"}

const redactedMarker = "[REDACTED]"

// Logger emits structured request/response entries. Declared first in the
// chain it measures the full latency of every inner stage.
type Logger struct {
	Log zerolog.Logger
	// LogPayloads includes redacted params/filter/payload in the request
	// entry.
	LogPayloads bool
	// Sensitive lists key substrings (case-insensitive) whose values are
	// replaced with a marker, recursively.
	Sensitive []string
	Disabled  bool
}

func (l *Logger) Name() string  { return "logger" }
func (l *Logger) Enabled() bool { return !l.Disabled }

func (l *Logger) Before(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	rc.Meta.StartedAt = time.Now()

	ev := l.Log.Info().
		Str("entity", rc.Entity).
		Str("op", string(rc.Op))
	if l.LogPayloads {
		ev = ev.
			Interface("params", l.redactStringMap(rc.Params)).
			Interface("filter", l.redact(rc.Filter)).
			Interface("payload", l.redact(rc.Payload))
	}
	ev.Msg("request")
	return nil, nil
}

func (l *Logger) After(ctx context.Context, rc *pipeline.RequestContext, resp *pipeline.Response) (*pipeline.Response, error) {
	elapsed := time.Since(rc.Meta.StartedAt)

	l.Log.Info().
		Str("entity", rc.Entity).
		Str("op", string(rc.Op)).
		Bool("success", resp.Err == nil).
		Dur("elapsed", elapsed).
		Bool("cache_hit", resp.Meta.CacheHit).
		Int("retries", rc.Meta.RetryCount).
		Msg("response")

	out := resp.Clone()
	out.Meta.Duration = elapsed
	return out, nil
}

func (l *Logger) OnError(ctx context.Context, rc *pipeline.RequestContext, err error) (*pipeline.Response, error) {
	l.Log.Error().
		Str("entity", rc.Entity).
		Str("op", string(rc.Op)).
		Err(err).
		Dur("elapsed", time.Since(rc.Meta.StartedAt)).
		Msg("request failed")
	// Never suppresses propagation.
	return nil, nil
}

func (l *Logger) sensitive() []string {
	if len(l.Sensitive) > 0 {
		return l.Sensitive
	}
	return defaultSensitive
}

func (l *Logger) isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range l.sensitive() {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// redact walks nested maps and slices replacing sensitive values.
func (l *Logger) redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if l.isSensitive(k) {
				out[k] = redactedMarker
				continue
			}
			out[k] = l.redact(inner)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = l.redact(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = l.redact(item)
		}
		return out
	default:
		return v
	}
}

func (l *Logger) redactStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if l.isSensitive(k) {
			out[k] = redactedMarker
			continue
		}
		out[k] = v
	}
	return out
}
