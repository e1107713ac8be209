package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
)

// Exec drives audio hardware through external processes (arecord/aplay on
// Linux, ffmpeg/ffplay elsewhere) exchanging raw PCM over pipes.
type Exec struct {
	opts Options
}

// NewExec creates a process-backed backend.
func NewExec(opts Options) *Exec {
	return &Exec{opts: opts}
}

// Name implements Backend.
func (e *Exec) Name() string { return "exec" }

// OpenCapture implements Backend. The process is spawned on Start.
func (e *Exec) OpenCapture(f types.Format, cb Callbacks) (Stream, error) {
	name, args, err := audio.BuildCaptureCommand(e.opts.Input, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
	}
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
	}
	return &execStream{
		name:    name,
		args:    args,
		bufSize: e.opts.BufferBytes(f),
		cb:      cb,
		capture: true,
	}, nil
}

// OpenPlayback implements Backend. The process is spawned on Start.
func (e *Exec) OpenPlayback(f types.Format, cb Callbacks) (Stream, error) {
	name, args := audio.BuildPlaybackCommand(e.opts.Output, f)
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err)
	}
	return &execStream{
		name:    name,
		args:    args,
		bufSize: e.opts.BufferBytes(f),
		period:  e.opts.Period(f),
		cb:      cb,
	}, nil
}

// execStream runs one device process per Start/Stop cycle.
type execStream struct {
	name    string
	args    []string
	bufSize int
	period  time.Duration // playback write cadence
	cb      Callbacks
	capture bool

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stderr  *util.BoundedBuffer
	running bool
	done    chan struct{} // closed once the last process has been reaped
}

func (s *execStream) unavailable() error {
	if s.capture {
		return types.ErrDeviceUnavailable
	}
	return types.ErrOutputDeviceUnavailable
}

// Start spawns the device process and its pump goroutine. A process from a
// previous cycle still winding down is given types.ShutdownTimeout to
// release the device first.
func (s *execStream) Start() error {
	s.mu.Lock()
	running, prev := s.running, s.done
	s.mu.Unlock()
	if running {
		return nil
	}
	if prev != nil {
		select {
		case <-prev:
		case <-time.After(types.ShutdownTimeout):
			slog.Warn("previous audio process still running", "command", s.name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Cancel = func() error { return util.GracefulSignal(cmd.Process) }
	cmd.WaitDelay = types.ShutdownTimeout
	s.stderr = util.NewStderrBuffer()
	cmd.Stderr = s.stderr

	var pipe io.Closer
	var err error
	if s.capture {
		var stdout io.ReadCloser
		stdout, err = cmd.StdoutPipe()
		pipe = stdout
		if err == nil {
			err = cmd.Start()
		}
		if err == nil {
			s.done = make(chan struct{})
			go s.readLoop(cmd, stdout, s.done)
		}
	} else {
		var stdin io.WriteCloser
		stdin, err = cmd.StdinPipe()
		pipe = stdin
		if err == nil {
			err = cmd.Start()
		}
		if err == nil {
			s.done = make(chan struct{})
			go s.writeLoop(ctx, cmd, stdin, s.done)
		}
	}
	if err != nil {
		cancel()
		util.SafeClose(pipe, s.name+" pipe")
		return fmt.Errorf("%w: failed to start %s: %w", s.unavailable(), s.name, err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.running = true
	slog.Debug("audio process started", "command", s.name, "pid", cmd.Process.Pid)
	return nil
}

// isCurrent reports whether cmd is still the live process.
func (s *execStream) isCurrent(cmd *exec.Cmd) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.cmd == cmd
}

// readLoop delivers captured PCM until the process exits.
func (s *execStream) readLoop(cmd *exec.Cmd, stdout io.Reader, done chan struct{}) {
	defer close(done)

	buf := make([]byte, s.bufSize)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 && s.isCurrent(cmd) && s.cb.Data != nil {
			s.cb.Data(buf[:n])
		}
		if err != nil {
			s.finish(cmd, err)
			return
		}
	}
}

// writeLoop feeds the player one buffer per buffer period, so no more than
// about one buffer is queued ahead of what the device has rendered. At the
// end of the material it closes stdin and waits for the player to finish
// before reporting the stream drained.
func (s *execStream) writeLoop(ctx context.Context, cmd *exec.Cmd, stdin io.WriteCloser, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	buf := make([]byte, s.bufSize)
	for {
		if !s.isCurrent(cmd) {
			util.SafeClose(stdin, s.name+" stdin")
			s.finish(cmd, nil)
			return
		}
		n := s.cb.Fill(buf)
		if n > 0 {
			if _, err := stdin.Write(buf[:n]); err != nil {
				util.SafeClose(stdin, s.name+" stdin")
				s.finish(cmd, err)
				return
			}
		}
		if n < len(buf) {
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	util.SafeClose(stdin, s.name+" stdin")
	if s.finish(cmd, nil) && s.cb.Drained != nil {
		s.cb.Drained()
	}
}

// finish reaps the process and reports an unexpected exit. It returns true
// when the process was still the live one and exited cleanly.
func (s *execStream) finish(cmd *exec.Cmd, ioErr error) bool {
	ioErr = errors.Join(ioErr, cmd.Wait())

	s.mu.Lock()
	if !s.running || s.cmd != cmd {
		s.mu.Unlock()
		return false
	}
	s.running = false
	s.cmd = nil
	s.cancel()
	lastErr := s.stderr.LastError()
	s.mu.Unlock()

	if ioErr == nil {
		return true
	}
	if lastErr == "" {
		lastErr = ioErr.Error()
	}
	slog.Error("audio process failed", "command", s.name, "error", lastErr)
	if s.cb.Error != nil {
		s.cb.Error(fmt.Errorf("%w: %s", s.unavailable(), lastErr))
	}
	return false
}

// Stop detaches the device process and returns at once. Cancel sends
// SIGINT and exec kills after WaitDelay; the pump goroutine reaps it.
func (s *execStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.cmd = nil
	s.cancel()
	return nil
}

// Close implements Stream.
func (s *execStream) Close() error {
	return s.Stop()
}
