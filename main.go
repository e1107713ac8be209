// Package main implements a clip recorder that captures microphone takes to
// WAV files, plays them back, and renders waveform overviews for a web UI.
//
// Usage:
//
//	cliprec [-config path/to/config.json]
//
// If -config is not specified, cliprec looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/config"
	"github.com/oszuidwest/zwfm-cliprec/internal/device"
	"github.com/oszuidwest/zwfm-cliprec/internal/playback"
	"github.com/oszuidwest/zwfm-cliprec/internal/recording"
	"github.com/oszuidwest/zwfm-cliprec/internal/server"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/update"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
	"github.com/oszuidwest/zwfm-cliprec/internal/waveform"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	logFile := setupLogging(snap)
	defer util.SafeClose(logFile, "log file")
	slog.Info("using config file", "path", *configPath)

	if err := run(cfg, snap); err != nil {
		slog.Error("cliprec failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, snap config.Snapshot) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := device.New(snap.Backend, device.Options{
		Input:  snap.AudioInput,
		Output: snap.AudioOutput,
		Buffer: snap.Buffer,
	})
	if err != nil {
		return util.WrapError("open audio backend", err)
	}
	if c, ok := backend.(io.Closer); ok {
		defer util.SafeClose(c, "audio backend")
	}
	arbiter := device.NewArbiter()

	store, err := recording.Open(ctx, snap.StoragePath)
	if err != nil {
		return err
	}
	defer util.SafeClose(store, "recording store")

	auth, err := recording.NewAuthorizer(snap.Microphone)
	if err != nil {
		return err
	}
	prompt, _ := auth.(*recording.Prompt)

	capture := recording.NewCapture(backend, arbiter, store, auth, recording.CaptureConfig{
		Format:        snap.Format,
		MeterInterval: snap.MeterInterval,
	})
	player := playback.New(backend, arbiter, snap.MeterInterval)
	analyzer := waveform.New(snap.WaveformResolution, waveform.Mode(snap.WaveformMode))
	store.OnDelete(func(rec types.Recording) { analyzer.Invalidate(rec.Location) })

	cleanup := recording.NewCleanup(store, snap.RetentionDays)
	cleanup.Start()

	checker := update.New(update.DefaultRepo, update.Build{Version: Version, Commit: Commit, BuildTime: BuildTime})
	go checker.Run(ctx)

	commands := server.NewCommandHandler(server.Deps{
		Config:   cfg,
		Store:    store,
		Capture:  capture,
		Playback: player,
		Analyzer: analyzer,
		Prompt:   prompt,
		Devices:  audio.ListDevices,
		Version:  checker.Info,
	})

	slog.Info("starting cliprec", "version", Version, "backend", backend.Name(), "storage", store.Dir())
	httpServer := NewServer(cfg, commands).Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Keep a take that was in progress.
	if capture.State() == types.CaptureRecording {
		if rec, err := capture.Stop(); err != nil {
			slog.Error("failed to finalize recording", "error", err)
		} else {
			slog.Info("finalized recording on shutdown", "location", rec.Location)
		}
	}

	player.Close()
	capture.Close()
	cleanup.Stop()

	slog.Info("shutdown complete")
	return nil
}
