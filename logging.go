package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/oszuidwest/zwfm-cliprec/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging installs the default slog logger. With a log path, records
// also go as JSON to a size-rotated file. The returned closer flushes it.
func setupLogging(snap config.Snapshot) io.Closer {
	var level slog.Level
	if err := level.UnmarshalText([]byte(snap.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	console := slog.NewTextHandler(os.Stderr, opts)
	if !snap.HasLogPath() {
		slog.SetDefault(slog.New(console))
		return io.NopCloser(nil)
	}

	file := &lumberjack.Logger{
		Filename:   snap.LogPath,
		MaxSize:    snap.LogMaxSizeMB,
		MaxBackups: snap.LogMaxBackups,
		MaxAge:     snap.LogMaxAgeDays,
		Compress:   true,
	}
	slog.SetDefault(slog.New(fanout{console, slog.NewJSONHandler(file, opts)}))
	return file
}
