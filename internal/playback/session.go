// Package playback renders recordings to the output device with
// sample-accurate seeking and periodic position reports.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/device"
	"github.com/oszuidwest/zwfm-cliprec/internal/event"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
)

// Owner is the name playback holds the audio device under.
const Owner = "playback"

// Session owns the playback state machine and the output stream.
//
// Lock order is mu, then cur. The audio thread only ever takes cur, so
// stopping a stream while holding mu cannot deadlock against Fill.
type Session struct {
	backend  device.Backend
	arbiter  *device.Arbiter
	events   *event.Bus
	interval time.Duration

	mu       sync.Mutex
	state    types.PlaybackState
	rec      types.Recording
	asset    *asset
	stream   device.Stream
	stopTick chan struct{}
	ticked   sync.WaitGroup

	// cur guards the play cursor, which Fill advances on the audio thread
	// and the ticker reads.
	cur       sync.Mutex
	material  *asset
	frame     int64
	gen       uint64 // bumped on each play or seek, so late completions are ignored
	ended     bool   // Fill has handed out the last frame
	notified  bool   // a drain for the current cursor has been handled
	scrubbing bool

	obs     sync.RWMutex
	stateRO types.PlaybackState
}

// New creates an idle playback session. interval is the position report cadence.
func New(backend device.Backend, arbiter *device.Arbiter, interval time.Duration) *Session {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Session{
		backend:  backend,
		arbiter:  arbiter,
		events:   event.NewBus(Owner),
		interval: interval,
		state:    types.PlaybackIdle,
		stateRO:  types.PlaybackIdle,
	}
}

// Subscribe returns playback events and a function that ends the subscription.
func (s *Session) Subscribe() (<-chan types.Event, func()) {
	return s.events.Subscribe()
}

// State returns the current state.
func (s *Session) State() types.PlaybackState {
	s.obs.RLock()
	defer s.obs.RUnlock()
	return s.stateRO
}

// Position returns the play cursor in seconds.
func (s *Session) Position() float64 {
	s.cur.Lock()
	defer s.cur.Unlock()
	return s.positionLocked()
}

// positionLocked returns the cursor in seconds. Caller must hold s.cur.
func (s *Session) positionLocked() float64 {
	if s.material == nil {
		return 0
	}
	return s.material.format.FramesToSeconds(s.frame)
}

// Duration returns the length of the loaded asset in seconds.
func (s *Session) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asset == nil {
		return 0
	}
	return s.asset.duration()
}

// Current returns the loaded recording.
func (s *Session) Current() (types.Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, s.asset != nil
}

// Scrubbing reports whether a scrub gesture is in progress.
func (s *Session) Scrubbing() bool {
	s.cur.Lock()
	defer s.cur.Unlock()
	return s.scrubbing
}

func (s *Session) setStateLocked(st types.PlaybackState) {
	s.state = st
	s.obs.Lock()
	s.stateRO = st
	s.obs.Unlock()
	s.events.Publish(types.Event{Kind: types.EventState, State: string(st)})
}

// Load decodes rec and prepares the output device.
func (s *Session) Load(rec types.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.PlaybackIdle && s.state != types.PlaybackStopped {
		return fmt.Errorf("%w: playback is %s", types.ErrInvalidState, s.state)
	}

	a, err := loadAsset(rec.Location)
	if err != nil {
		return s.loadFailedLocked(rec, err)
	}

	s.releaseLocked()
	s.rec = rec
	s.setAssetLocked(a)

	if err := s.openLocked(); err != nil {
		return s.loadFailedLocked(rec, err)
	}

	s.setStateLocked(types.PlaybackLoaded)
	slog.Info("playback loaded", "location", rec.Location, "duration", a.duration())
	return nil
}

// openLocked takes the device and opens an output stream for the asset.
// Caller must hold s.mu.
func (s *Session) openLocked() error {
	if s.stream != nil {
		return nil
	}
	if err := s.arbiter.Acquire(Owner); err != nil {
		return err
	}
	stream, err := s.backend.OpenPlayback(s.asset.format, device.Callbacks{
		Fill:    s.fill,
		Drained: s.drained,
		Error:   s.streamError,
	})
	if err != nil {
		s.arbiter.Release(Owner)
		if !errors.Is(err, types.ErrOutputDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err)
		}
		return err
	}
	s.stream = stream
	return nil
}

// releaseLocked closes the stream and frees the device. Caller must hold s.mu.
func (s *Session) releaseLocked() {
	s.stopTicksLocked()
	if s.stream != nil {
		util.SafeClose(s.stream, "playback stream")
		s.stream = nil
	}
	s.arbiter.Release(Owner)
}

// abortLocked moves to Stopped after a failure. Caller must hold s.mu.
func (s *Session) abortLocked(err error) error {
	s.releaseLocked()
	s.setCursor(0)
	s.setStateLocked(types.PlaybackStopped)
	slog.Error("playback failed", "location", s.rec.Location, "error", err)
	s.events.Publish(types.Event{Kind: types.EventFailed, Err: err})
	return err
}

// loadFailedLocked unloads whatever was loaded before, so a failed Load
// never leaves the previous recording playable. Caller must hold s.mu.
func (s *Session) loadFailedLocked(rec types.Recording, err error) error {
	s.releaseLocked()
	s.rec = types.Recording{}
	s.setAssetLocked(nil)
	s.setStateLocked(types.PlaybackStopped)
	slog.Error("playback load failed", "location", rec.Location, "error", err)
	s.events.Publish(types.Event{Kind: types.EventFailed, Err: err})
	return err
}

// setAssetLocked swaps the loaded material and rewinds. Caller must hold
// s.mu with no stream open.
func (s *Session) setAssetLocked(a *asset) {
	s.asset = a
	s.cur.Lock()
	s.material = a
	s.frame = 0
	s.ended = false
	s.notified = false
	s.scrubbing = false
	s.cur.Unlock()
}

// setCursor rewinds or moves the cursor and ends any scrub.
func (s *Session) setCursor(frame int64) {
	s.cur.Lock()
	s.frame = frame
	s.ended = false
	s.notified = false
	s.scrubbing = false
	s.cur.Unlock()
}

// fill runs on the audio thread.
func (s *Session) fill(out []byte) int {
	s.cur.Lock()
	defer s.cur.Unlock()

	a := s.material
	if a == nil || s.ended {
		return 0
	}
	frameSize := a.format.FrameSize()
	offset := int(s.frame) * frameSize
	n := copy(out[:len(out)-len(out)%frameSize], a.pcm[offset:])
	s.frame += int64(n / frameSize)

	if s.frame >= a.frames {
		s.ended = true
	}
	return n
}

// drained runs on the audio thread once the device has rendered everything
// Fill handed out.
func (s *Session) drained() {
	s.cur.Lock()
	if s.notified {
		s.cur.Unlock()
		return
	}
	s.notified = true
	gen := s.gen
	s.cur.Unlock()
	go s.complete(gen)
}

// complete handles a drained stream for play generation gen.
func (s *Session) complete(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.PlaybackPlaying {
		return
	}
	s.cur.Lock()
	done := s.ended && gen == s.gen
	s.cur.Unlock()
	if !done {
		// The cursor moved back while the tail drained; carry on from there.
		if err := s.stream.Start(); err != nil {
			_ = s.abortLocked(fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err))
		}
		return
	}

	rec := s.rec
	s.releaseLocked()
	s.setCursor(0)
	s.setStateLocked(types.PlaybackStopped)
	slog.Info("playback completed", "location", rec.Location)
	s.events.Publish(types.Event{Kind: types.EventCompleted, Recording: &rec})
}

// streamError handles a device failure reported by the stream.
func (s *Session) streamError(err error) {
	if !errors.Is(err, types.ErrOutputDeviceUnavailable) {
		err = fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err)
	}
	// The stream may be waiting on this callback; tear down elsewhere.
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == types.PlaybackPlaying || s.state == types.PlaybackPaused || s.state == types.PlaybackLoaded {
			_ = s.abortLocked(err)
		}
	}()
}

// Play starts or resumes output from the current position.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playLocked()
}

// PlayFrom seeks to seconds, clamped to the asset, and plays.
func (s *Session) PlayFrom(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seekLocked(seconds); err != nil {
		return err
	}
	return s.playLocked()
}

func (s *Session) playLocked() error {
	switch s.state {
	case types.PlaybackPlaying:
		// A seek past the end may have let the stream run dry; restart it.
		if err := s.stream.Start(); err != nil {
			return s.abortLocked(fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err))
		}
		return nil
	case types.PlaybackLoaded, types.PlaybackPaused, types.PlaybackStopped:
	default:
		return fmt.Errorf("%w: playback is %s", types.ErrInvalidState, s.state)
	}
	if s.asset == nil {
		return fmt.Errorf("%w: nothing loaded", types.ErrInvalidState)
	}

	if err := s.openLocked(); err != nil {
		if errors.Is(err, types.ErrInvalidState) {
			return err
		}
		return s.abortLocked(err)
	}

	s.cur.Lock()
	s.gen++
	s.ended = false
	s.notified = false
	s.cur.Unlock()

	if err := s.stream.Start(); err != nil {
		if !errors.Is(err, types.ErrOutputDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err)
		}
		return s.abortLocked(err)
	}

	s.startTicksLocked()
	s.setStateLocked(types.PlaybackPlaying)
	return nil
}

// Seek moves the cursor without changing state.
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(seconds)
}

func (s *Session) seekLocked(seconds float64) error {
	if s.asset == nil {
		return fmt.Errorf("%w: nothing loaded", types.ErrInvalidState)
	}
	seconds = util.Clamp(seconds, 0, s.asset.duration())
	frame := min(s.asset.format.SecondsToFrames(seconds), s.asset.frames)

	s.cur.Lock()
	s.frame = frame
	s.ended = false
	s.notified = false
	// A completion already in flight belongs to the material before the seek.
	s.gen++
	s.cur.Unlock()
	return nil
}

// Pause halts output and keeps the position.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.PlaybackPlaying {
		return fmt.Errorf("%w: playback is %s", types.ErrInvalidState, s.state)
	}
	s.stopTicksLocked()
	if err := s.stream.Stop(); err != nil {
		return s.abortLocked(fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err))
	}
	s.setStateLocked(types.PlaybackPaused)
	return nil
}

// Stop halts output, releases the device and resets the position to 0.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case types.PlaybackStopped:
		return nil
	case types.PlaybackLoaded, types.PlaybackPlaying, types.PlaybackPaused:
	default:
		return fmt.Errorf("%w: playback is %s", types.ErrInvalidState, s.state)
	}
	s.releaseLocked()
	s.setCursor(0)
	s.setStateLocked(types.PlaybackStopped)
	return nil
}

// Close unloads the asset and returns to Idle from any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.rec = types.Recording{}
	s.setAssetLocked(nil)
	if s.state != types.PlaybackIdle {
		s.setStateLocked(types.PlaybackIdle)
	}
}

// BeginScrub suppresses position reports while a user drags the playhead.
func (s *Session) BeginScrub() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asset == nil {
		return fmt.Errorf("%w: nothing loaded", types.ErrInvalidState)
	}
	s.cur.Lock()
	s.scrubbing = true
	s.cur.Unlock()
	return nil
}

// EndScrub seeks to the release point and resumes position reports from there.
// Playback that was running keeps running from the new position.
func (s *Session) EndScrub(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seekLocked(seconds); err != nil {
		return err
	}
	s.cur.Lock()
	s.scrubbing = false
	pos := s.positionLocked()
	s.cur.Unlock()
	s.events.Publish(types.Event{Kind: types.EventPosition, Position: pos})
	return nil
}

func (s *Session) startTicksLocked() {
	s.stopTick = make(chan struct{})
	s.ticked.Add(1)
	go s.tickLoop(s.stopTick)
}

func (s *Session) stopTicksLocked() {
	if s.stopTick == nil {
		return
	}
	close(s.stopTick)
	s.stopTick = nil
	// tickLoop never takes s.mu, so waiting here is safe.
	s.ticked.Wait()
}

func (s *Session) tickLoop(stop chan struct{}) {
	defer s.ticked.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick publishes the position unless a scrub is in progress.
func (s *Session) tick(now time.Time) {
	s.cur.Lock()
	if s.scrubbing || s.material == nil {
		s.cur.Unlock()
		return
	}
	pos := s.positionLocked()
	s.cur.Unlock()
	s.events.Publish(types.Event{Kind: types.EventPosition, Position: pos, Time: now})
}
