package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the application logger writing to w. Unknown levels fall
// back to info and any format other than json selects text. The global
// logger is left alone.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "nodegrid")
}
