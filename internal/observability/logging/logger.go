// Package logging builds the process-wide structured logger. Every process
// logs JSON lines tagged with its service name so the api, indexer and mcp
// streams can be told apart in aggregation.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a JSON slog.Logger writing to w. Level accepts debug, info,
// warn/warning and error; anything else means info. The mcp process must
// pass stderr here, its stdout carries the wire protocol.
func New(w io.Writer, service, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With(slog.String("service", service))
}
