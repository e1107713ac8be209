package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/util"
)

// StatusInterval is how often a full status frame is pushed.
const StatusInterval = 3 * time.Second

// outboxSize is the number of frames queued for one connection.
const outboxSize = 64

// ServeWS upgrades the request and serves one client: commands in, status,
// meter, position and event frames out. All writes happen on this goroutine.
func (h *CommandHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer util.SafeCloseFunc(conn, "WebSocket connection")()
	remote := clientAddr(r)
	slog.Debug("WebSocket client connected", "remote", remote)
	defer slog.Debug("WebSocket client disconnected", "remote", remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbox := make(chan any, outboxSize)
	send := func(v any) {
		select {
		case outbox <- v:
		case <-ctx.Done():
		}
	}

	captureEvents, stopCapture := h.Capture.Subscribe()
	defer stopCapture()
	playbackEvents, stopPlayback := h.Playback.Subscribe()
	defer stopPlayback()
	storeEvents, stopStore := h.Store.Events().Subscribe()
	defer stopStore()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if err := h.Handle(ctx, cmd, send); err != nil {
				slog.Warn("command failed", "command", commandName(cmd), "error", err)
				send(errorFrame(commandName(cmd), err))
			}
			send(h.Status())
		}
	}()

	statusTicker := time.NewTicker(StatusInterval)
	defer statusTicker.Stop()

	write := func(v any) bool {
		if err := conn.WriteJSON(v); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return false
		}
		return true
	}

	if !write(h.Status()) {
		return
	}

	for {
		var frame any
		select {
		case <-done:
			return
		case frame = <-outbox:
		case <-statusTicker.C:
			frame = h.Status()
		case ev, ok := <-captureEvents:
			if !ok {
				return
			}
			frame = eventFrame(ev)
		case ev, ok := <-playbackEvents:
			if !ok {
				return
			}
			frame = eventFrame(ev)
		case ev, ok := <-storeEvents:
			if !ok {
				return
			}
			frame = eventFrame(ev)
		}
		if !write(frame) {
			return
		}
	}
}

