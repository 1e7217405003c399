package errors

import "log/slog"

// LogHandler is an ErrorHandler that writes errors to a slog.Logger.
type LogHandler struct {
	// Logger receives the records. Nil means slog.Default().
	Logger *slog.Logger
	// Verbose adds stack traces to panic records.
	Verbose bool
}

func (h *LogHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// HandleError logs a GateError at error level.
func (h *LogHandler) HandleError(err *GateError) {
	if err == nil {
		return
	}
	attrs := []any{
		slog.String("op", err.Op),
		slog.String("kind", err.Kind.String()),
		slog.Any("err", err.Err),
	}
	if err.Channel != "" {
		attrs = append(attrs, slog.String("channel", err.Channel))
	}
	h.logger().Error("storagegate error", attrs...)
}

// HandlePanic logs a PanicError at error level.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	attrs := []any{
		slog.String("op", err.Op),
		slog.Any("value", err.Value),
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}
	h.logger().Error("storagegate panic", attrs...)
}
