// Package logging provides mqttpulse's structured logger: a thin
// key/value wrapper over github.com/rs/zerolog, grounded on the
// teacher's pkg/engine.DefaultLogger (same zero-allocation structured
// approach, same optional random sampler for noisy levels, generalized
// from a hardcoded env var name to this module's).
package logging

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Logger is the structured logger every mqttpulse component is handed.
type Logger struct {
	base    zerolog.Logger
	sampler zerolog.Sampler
	sampled zerolog.Logger
}

// New builds a Logger writing to stderr with an RFC3339 timestamp.
// MQTTPULSE_LOG_SAMPLE_N, if set to an integer > 1, samples Warn/Error
// logs to curb spam from a noisy broker connection.
func New() *Logger {
	base := zerolog.New(os.Stderr).With().Timestamp().Logger()
	var sampler zerolog.Sampler
	if v := os.Getenv("MQTTPULSE_LOG_SAMPLE_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			sampler = zerolog.RandomSampler(uint32(n))
		}
	}
	var sampled zerolog.Logger
	if sampler != nil {
		sampled = base.Sample(sampler)
	}
	return &Logger{base: base, sampler: sampler, sampled: sampled}
}

// Zerolog returns the underlying zerolog.Logger, for components (like the
// tap server) that want to hold a plain zerolog.Logger value.
func (l *Logger) Zerolog() zerolog.Logger { return l.base }

func (l *Logger) emit(event *zerolog.Event, msg string, kv ...any) {
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		if i+1 < len(kv) {
			event.Interface(key, kv[i+1])
		} else {
			event.Interface(key, nil)
		}
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, kv ...any) { l.emit(l.base.Debug(), msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.emit(l.base.Info(), msg, kv...) }

func (l *Logger) Warn(msg string, kv ...any) {
	if l.sampler != nil {
		l.emit(l.sampled.Warn(), msg, kv...)
		return
	}
	l.emit(l.base.Warn(), msg, kv...)
}

func (l *Logger) Error(msg string, kv ...any) {
	if l.sampler != nil {
		l.emit(l.sampled.Error(), msg, kv...)
		return
	}
	l.emit(l.base.Error(), msg, kv...)
}
