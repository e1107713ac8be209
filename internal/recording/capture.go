package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/device"
	"github.com/oszuidwest/zwfm-cliprec/internal/event"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
	"github.com/oszuidwest/zwfm-cliprec/internal/wavfile"
)

// Owner is the name capture holds the audio device under.
const Owner = "capture"

// DefaultQueueDepth is the number of device buffers that may wait for the
// file writer before the take fails.
const DefaultQueueDepth = 512

// CaptureConfig configures a capture session.
type CaptureConfig struct {
	Format        types.Format
	MeterInterval time.Duration
	QueueDepth    int
}

// Capture owns the record state machine. At most one take is active.
type Capture struct {
	backend  device.Backend
	arbiter  *device.Arbiter
	store    *Store
	auth     Authorizer
	events   *event.Bus
	format   types.Format
	interval time.Duration
	depth    int

	// mu serializes operations and guards state and take.
	mu    sync.Mutex
	state types.CaptureState
	take  *take

	// obs guards the observable fields, which ticks update without mu.
	obs     sync.RWMutex
	elapsed float64
	level   float64
	peak    float64
	holder  *audio.PeakHolder
	stateRO types.CaptureState
}

// NewCapture creates an idle capture session.
func NewCapture(backend device.Backend, arbiter *device.Arbiter, store *Store, auth Authorizer, cfg CaptureConfig) *Capture {
	interval := cfg.MeterInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Capture{
		backend:  backend,
		arbiter:  arbiter,
		store:    store,
		auth:     auth,
		events:   event.NewBus(Owner),
		format:   cfg.Format,
		interval: interval,
		depth:    depth,
		state:    types.CaptureIdle,
		stateRO:  types.CaptureIdle,
		holder:   audio.NewPeakHolder(),
	}
}

// take is one in-progress recording.
type take struct {
	partial string
	final   string
	started time.Time
	writer  *wavfile.Writer
	stream  device.Stream

	qmu    sync.RWMutex
	queue  chan []byte
	closed bool

	levelMu sync.Mutex
	levels  audio.LevelData
	frames  int64

	errOnce sync.Once
	errMu   sync.Mutex
	err     error

	stopTick chan struct{}
	ticked   sync.WaitGroup
	done     chan struct{} // closed when the writer has drained the queue
}

// CheckPermission reports the microphone decision without prompting.
func (c *Capture) CheckPermission() types.PermissionStatus {
	return c.auth.Status()
}

// Subscribe returns capture events and a function that ends the subscription.
func (c *Capture) Subscribe() (<-chan types.Event, func()) {
	return c.events.Subscribe()
}

// State returns the current state.
func (c *Capture) State() types.CaptureState {
	c.obs.RLock()
	defer c.obs.RUnlock()
	return c.stateRO
}

// Elapsed returns the recorded length of the active take in seconds.
func (c *Capture) Elapsed() float64 {
	c.obs.RLock()
	defer c.obs.RUnlock()
	return c.elapsed
}

// Level returns the latest normalized input level and held peak, both in [0,1].
func (c *Capture) Level() (level, peak float64) {
	c.obs.RLock()
	defer c.obs.RUnlock()
	return c.level, c.peak
}

// setStateLocked records a transition and publishes it. Caller must hold c.mu.
func (c *Capture) setStateLocked(s types.CaptureState) {
	c.state = s
	c.obs.Lock()
	c.stateRO = s
	if s == types.CaptureIdle {
		c.level, c.peak = 0, 0
		c.holder.Reset()
	}
	c.obs.Unlock()
	c.events.Publish(types.Event{Kind: types.EventState, State: string(s)})
}

// Start begins a take. Permission must already be granted.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.CaptureIdle {
		return fmt.Errorf("%w: capture is %s", types.ErrInvalidState, c.state)
	}
	if status := c.auth.Status(); status != types.PermissionGranted {
		return fmt.Errorf("%w: microphone permission %s", types.ErrInvalidState, status)
	}
	return c.beginLocked()
}

// RequestPermissionAndStart prompts for permission when it is undetermined
// and starts a take once granted. It blocks while the prompt is open.
func (c *Capture) RequestPermissionAndStart(ctx context.Context) error {
	c.mu.Lock()
	if c.state != types.CaptureIdle {
		defer c.mu.Unlock()
		return fmt.Errorf("%w: capture is %s", types.ErrInvalidState, c.state)
	}

	switch c.auth.Status() {
	case types.PermissionGranted:
		defer c.mu.Unlock()
		return c.beginLocked()
	case types.PermissionDenied:
		c.mu.Unlock()
		return c.denied(nil)
	}

	c.setStateLocked(types.CapturePermissionPending)
	c.mu.Unlock()

	granted, err := c.auth.Request(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.CapturePermissionPending {
		// Cancelled while the prompt was open.
		return fmt.Errorf("%w: permission request cancelled", types.ErrInvalidState)
	}
	if err != nil || !granted {
		c.setStateLocked(types.CaptureIdle)
		return c.denied(err)
	}
	return c.beginLocked()
}

func (c *Capture) denied(cause error) error {
	err := types.ErrPermissionDenied
	if cause != nil {
		err = fmt.Errorf("%w: %w", types.ErrPermissionDenied, cause)
	}
	slog.Warn("microphone permission denied", "error", cause)
	c.events.Publish(types.Event{Kind: types.EventFailed, Err: err})
	return err
}

// beginLocked opens the file and the input stream. Caller must hold c.mu.
// On failure nothing is left behind and the session stays Idle.
func (c *Capture) beginLocked() error {
	if err := c.arbiter.Acquire(Owner); err != nil {
		c.resetLocked()
		return err
	}

	partial, final := c.store.NewTake()
	w, err := wavfile.Create(partial, c.format)
	if err != nil {
		c.arbiter.Release(Owner)
		c.resetLocked()
		return err
	}

	t := &take{
		partial:  partial,
		final:    final,
		started:  time.Now(),
		writer:   w,
		queue:    make(chan []byte, c.depth),
		stopTick: make(chan struct{}),
		done:     make(chan struct{}),
	}

	stream, err := c.backend.OpenCapture(c.format, device.Callbacks{
		Data:  func(pcm []byte) { t.enqueue(pcm, c.abort) },
		Error: func(err error) {
			if !errors.Is(err, types.ErrDeviceUnavailable) {
				err = fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
			}
			t.fail(err, c.abort)
		},
	})
	if err == nil {
		t.stream = stream
		if err = stream.Start(); err != nil {
			util.SafeClose(stream, "capture stream")
			err = fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
		}
	}
	if err != nil {
		util.SafeClose(w, "capture file")
		util.RemoveFile(partial, "partial capture")
		c.arbiter.Release(Owner)
		c.resetLocked()
		slog.Error("failed to start capture", "backend", c.backend.Name(), "error", err)
		return err
	}

	c.take = t
	c.obs.Lock()
	c.elapsed = 0
	c.obs.Unlock()

	go c.writeLoop(t)
	t.ticked.Add(1)
	go c.tickLoop(t)

	c.setStateLocked(types.CaptureRecording)
	slog.Info("capture started", "file", partial, "sample_rate", c.format.SampleRate, "channels", c.format.Channels)
	return nil
}

// resetLocked returns to Idle after a failed start. Caller must hold c.mu.
func (c *Capture) resetLocked() {
	if c.state != types.CaptureIdle {
		c.setStateLocked(types.CaptureIdle)
	}
}

// enqueue runs on the audio thread. It copies pcm and hands it to the
// writer without blocking.
func (t *take) enqueue(pcm []byte, abort func(*take, error)) {
	buf := append([]byte(nil), pcm...)

	t.qmu.RLock()
	defer t.qmu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- buf:
	default:
		go t.fail(fmt.Errorf("%w: writer fell behind the input stream", types.ErrStorageWriteFailure), abort)
	}
}

func (t *take) closeQueue() {
	t.qmu.Lock()
	defer t.qmu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
}

// fail records the first asynchronous error of the take. abort, when set,
// is started on its own goroutine so device callbacks never wait on teardown.
func (t *take) fail(err error, abort func(*take, error)) {
	t.errOnce.Do(func() {
		t.errMu.Lock()
		t.err = err
		t.errMu.Unlock()
		t.closeQueue()
		if abort != nil {
			go abort(t, err)
		}
	})
}

func (t *take) failure() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// writeLoop drains the queue into the file and accumulates meter data.
func (c *Capture) writeLoop(t *take) {
	defer close(t.done)
	for buf := range t.queue {
		t.levelMu.Lock()
		audio.ProcessSamples(buf, &t.levels)
		t.levelMu.Unlock()

		if t.failure() == nil {
			if err := t.writer.Write(buf); err != nil {
				t.fail(err, c.abort)
			} else {
				c.obs.Lock()
				c.elapsed = t.writer.Duration()
				c.obs.Unlock()
			}
		}
	}
}

// tickLoop publishes elapsed time and meter level at the meter cadence.
func (c *Capture) tickLoop(t *take) {
	defer t.ticked.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopTick:
			return
		case now := <-ticker.C:
			c.tick(t, now)
		}
	}
}

func (c *Capture) tick(t *take, now time.Time) {
	t.levelMu.Lock()
	data := t.levels
	audio.ResetLevelData(&t.levels)
	t.levelMu.Unlock()

	c.obs.Lock()
	if data.SampleCount > 0 {
		c.level = audio.MeterValue(audio.CalculateLevel(&data).Peak)
	}
	c.peak = c.holder.Update(c.level, now)
	ev := types.Event{Kind: types.EventLevel, Elapsed: c.elapsed, Level: c.level, PeakLevel: c.peak, Time: now}
	c.obs.Unlock()

	c.events.Publish(ev)
}

// teardown stops the stream and waits for the writer. Caller must hold c.mu.
func (c *Capture) teardown(t *take) error {
	close(t.stopTick)
	t.ticked.Wait()

	var errs []error
	if err := t.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err))
	}
	t.closeQueue()
	<-t.done
	if err := t.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := t.failure(); err != nil {
		errs = append([]error{err}, errs...)
	}
	c.take = nil
	c.arbiter.Release(Owner)
	return errors.Join(errs...)
}

// Stop finalizes the active take into a Recording and adds it to the store.
// The duration is taken from the frames written, not the wall clock.
func (c *Capture) Stop() (types.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.CaptureRecording {
		return types.Recording{}, fmt.Errorf("%w: capture is %s", types.ErrInvalidState, c.state)
	}
	t := c.take
	c.setStateLocked(types.CaptureFinalizing)

	if err := c.teardown(t); err != nil {
		return types.Recording{}, c.abandonLocked(t, err)
	}

	if err := os.Rename(t.partial, t.final); err != nil {
		return types.Recording{}, c.abandonLocked(t, fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err))
	}

	rec := types.Recording{
		Location:  t.final,
		Name:      t.started.Format(NameLayout),
		CreatedAt: t.started,
		Duration:  t.writer.Duration(),
	}
	if err := c.store.Add(rec); err != nil {
		util.RemoveFile(t.final, "capture file")
		return types.Recording{}, c.abandonLocked(t, err)
	}

	c.setStateLocked(types.CaptureIdle)
	slog.Info("capture finalized", "location", rec.Location, "duration", rec.Duration)
	c.events.Publish(types.Event{Kind: types.EventFinalized, Recording: &rec})
	return rec, nil
}

// abandonLocked discards a take after a failure. Caller must hold c.mu.
func (c *Capture) abandonLocked(t *take, err error) error {
	util.RemoveFile(t.partial, "partial capture")
	c.setStateLocked(types.CaptureIdle)
	slog.Error("capture failed", "file", t.partial, "error", err)
	c.events.Publish(types.Event{Kind: types.EventFailed, Err: err})
	return err
}

// abort tears down t after an asynchronous failure, unless it already ended.
func (c *Capture) abort(t *take, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.take != t {
		return
	}
	err := c.teardown(t)
	if err == nil {
		err = cause
	}
	_ = c.abandonLocked(t, err)
}

// Cancel discards the active take, or abandons an open permission prompt.
func (c *Capture) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case types.CapturePermissionPending:
		c.setStateLocked(types.CaptureIdle)
		return nil
	case types.CaptureRecording:
		t := c.take
		if err := c.teardown(t); err != nil {
			slog.Warn("capture teardown error on cancel", "error", err)
		}
		util.RemoveFile(t.partial, "partial capture")
		c.setStateLocked(types.CaptureIdle)
		slog.Info("capture cancelled", "file", t.partial)
		return nil
	default:
		return fmt.Errorf("%w: capture is %s", types.ErrInvalidState, c.state)
	}
}

// Close cancels any active take and ends subscriptions.
func (c *Capture) Close() {
	_ = c.Cancel()
	c.events.Close()
}
