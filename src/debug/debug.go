package debug

import (
	"log/slog"
	"runtime"
)

func Init(level string) {
	slog.SetLogLoggerLevel(getLogLevel(level))
}

// RuntimeAttr attaches caller file/line to a debug log entry.
func RuntimeAttr(ctx string) slog.Attr {
	_, file, line, ok := runtime.Caller(1)
	if ok {
		return slog.Group("runtime",
			slog.String("file", file),
			slog.Int("line", line),
			slog.String("msg", ctx),
		)
	}
	return slog.String("msg", ctx)
}

func getLogLevel(level string) slog.Level {

	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
