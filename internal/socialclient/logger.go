package socialclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// restyLogger sends resty's own diagnostics through slog instead of stderr.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) logf(level slog.Level, format string, v ...any) {
	l.log.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (l restyLogger) Errorf(format string, v ...any) { l.logf(slog.LevelError, format, v...) }

// Warnf is logged at debug: resty warns about bearer tokens over plain HTTP
// on every call, which is the normal setup against a local stack.
func (l restyLogger) Warnf(format string, v ...any) { l.logf(slog.LevelDebug, format, v...) }

func (l restyLogger) Debugf(format string, v ...any) { l.logf(slog.LevelDebug, format, v...) }
