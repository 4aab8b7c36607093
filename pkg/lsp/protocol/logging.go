package protocol

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/walteh/tokenhints/pkg/debug"
)

var myLoggerId = xid.New().String()

// ApplyClientToZerolog routes the context logger to the editor as
// window/logMessage notifications. The level of the incoming logger is kept.
func ApplyClientToZerolog(ctx context.Context, client Client) context.Context {
	writer := &logWriter{client: client, ctx: context.WithoutCancel(ctx)}

	level := zerolog.Ctx(ctx).GetLevel()

	return zerolog.New(writer).With().
		Str("id", myLoggerId).
		Str("lsp_role", "server").
		Logger().
		Level(level).
		Hook(debug.CustomTimeHook{}).
		Hook(debug.CustomCallerHook{}).
		WithContext(ctx)
}

func ApplyRequestToZerolog(ctx context.Context, req *jrpc2.Request) context.Context {
	return zerolog.Ctx(ctx).With().Str("rpc_method", req.Method()).Str("rpc_id", req.ID()).Logger().WithContext(ctx)
}

type logWriter struct {
	client Client
	mu     sync.Mutex
	ctx    context.Context
}

// Write turns one zerolog JSON line into a log message. Lines that are not
// JSON are dropped and a failed notification never fails the log call.
func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil
	}

	id := extractField(entry, "id", "")
	params := &LogMessageParams{
		Type:         ParseMessageTypeFromZerolog(extractField(entry, "level", "info")),
		Message:      extractField(entry, "message", ""),
		Time:         extractField(entry, "time", ""),
		Source:       extractField(entry, "caller", ""),
		IsDependency: id != myLoggerId,
		Extra:        entry,
	}

	if w.client != nil {
		_ = w.client.LogMessage(w.ctx, params)
	}
	return len(p), nil
}

func extractField(entry map[string]any, key, defaultValue string) string {
	if v, ok := entry[key].(string); ok {
		delete(entry, key)
		return v
	}
	return defaultValue
}

func ParseMessageTypeFromZerolog(level string) MessageType {
	switch level {
	case "error", "fatal", "panic":
		return Error
	case "warn":
		return Warning
	case "info":
		return Info
	case "debug":
		return Debug
	default:
		return Log
	}
}
