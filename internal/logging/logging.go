// Package logging provides the structured logging wrapper used by every
// package in this module. It speaks in (ctx, msg, keyvals...) pairs rather
// than format strings so call sites stay greppable and log shipping can
// attach trace/request identifiers pulled from ctx.
package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btclog/v2"
)

// ctxKey is the context key under which correlation fields are stashed by
// WithFields so they get merged into every subsequent log call on that ctx.
type ctxKey struct{}

// Logger is the structured logger interface used throughout this module. It
// mirrors btclog's *S methods so callers can pass alternating key/value
// pairs instead of building format strings by hand.
type Logger interface {
	TraceS(ctx context.Context, msg string, keyvals ...interface{})
	DebugS(ctx context.Context, msg string, keyvals ...interface{})
	InfoS(ctx context.Context, msg string, keyvals ...interface{})
	WarnS(ctx context.Context, msg string, keyvals ...interface{})
	ErrorS(ctx context.Context, msg string, err error, keyvals ...interface{})

	// SubSystem returns a Logger tagged with the given subsystem name,
	// mirroring btclog's subsystem-tagging convention.
	SubSystem(tag string) Logger
}

// btcLogger adapts a btclog.Logger into our Logger interface.
type btcLogger struct {
	l btclog.Logger
}

// NewLogger wraps an existing btclog.Logger.
func NewLogger(l btclog.Logger) Logger {
	return &btcLogger{l: l}
}

// Disabled returns a Logger that discards everything, used as the default
// before a caller wires up real output.
func Disabled() Logger {
	return NewLogger(btclog.Disabled)
}

func withCtxFields(ctx context.Context, keyvals []interface{}) []interface{} {
	fields, _ := ctx.Value(ctxKey{}).([]interface{})
	if len(fields) == 0 {
		return keyvals
	}

	merged := make([]interface{}, 0, len(fields)+len(keyvals))
	merged = append(merged, fields...)
	merged = append(merged, keyvals...)

	return merged
}

func (b *btcLogger) TraceS(ctx context.Context, msg string, keyvals ...interface{}) {
	b.l.TraceS(ctx, msg, withCtxFields(ctx, keyvals)...)
}

func (b *btcLogger) DebugS(ctx context.Context, msg string, keyvals ...interface{}) {
	b.l.DebugS(ctx, msg, withCtxFields(ctx, keyvals)...)
}

func (b *btcLogger) InfoS(ctx context.Context, msg string, keyvals ...interface{}) {
	b.l.InfoS(ctx, msg, withCtxFields(ctx, keyvals)...)
}

func (b *btcLogger) WarnS(ctx context.Context, msg string, keyvals ...interface{}) {
	b.l.WarnS(ctx, msg, withCtxFields(ctx, keyvals)...)
}

func (b *btcLogger) ErrorS(ctx context.Context, msg string, err error, keyvals ...interface{}) {
	b.l.ErrorS(ctx, msg, err, withCtxFields(ctx, keyvals)...)
}

func (b *btcLogger) SubSystem(tag string) Logger {
	return NewLogger(b.l.SubSystem(tag))
}

// WithFields returns a derived context that carries additional key/value
// pairs. Any Logger call made with the derived context has those fields
// merged in ahead of the call-site's own keyvals. Used to thread an
// AgentRuntimeId or a correlation id through a processing loop without
// repeating it at every log call.
func WithFields(ctx context.Context, keyvals ...interface{}) context.Context {
	if len(keyvals)%2 != 0 {
		panic("logging: WithFields requires an even number of keyvals")
	}

	existing, _ := ctx.Value(ctxKey{}).([]interface{})
	merged := make([]interface{}, 0, len(existing)+len(keyvals))
	merged = append(merged, existing...)
	merged = append(merged, keyvals...)

	return context.WithValue(ctx, ctxKey{}, merged)
}

// FieldsString renders keyvals the way a human-facing fallback (e.g. a
// panic message) would, for code paths that can't reach a Logger.
func FieldsString(keyvals ...interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(keyvals); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", keyvals[i], keyvals[i+1])
	}

	return b.String()
}
