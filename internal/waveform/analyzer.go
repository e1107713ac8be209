// Package waveform derives fixed-resolution amplitude envelopes from
// recordings for display and scrubbing.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/wavfile"
)

// Analyzer decodes recordings and reduces them to envelopes. It keeps the
// most recent result so redisplaying the same recording is free.
type Analyzer struct {
	mode Mode

	mu         sync.Mutex
	resolution int
	cached     *types.Envelope
	gen        uint64 // bumped whenever the cache is invalidated
}

// New creates an analyzer producing envelopes of resolution samples.
func New(resolution int, mode Mode) *Analyzer {
	if mode != ModeRMS {
		mode = ModePeak
	}
	return &Analyzer{resolution: max(resolution, 1), mode: mode}
}

// Resolution returns the envelope length.
func (a *Analyzer) Resolution() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resolution
}

// SetResolution changes the envelope length and drops the cached result.
func (a *Analyzer) SetResolution(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolution = max(n, 1)
	a.cached = nil
	a.gen++
}

// Current returns the cached envelope, if any.
func (a *Analyzer) Current() (types.Envelope, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached == nil {
		return types.Envelope{}, false
	}
	return clone(*a.cached), true
}

// Invalidate drops the cached envelope if it belongs to location.
func (a *Analyzer) Invalidate(location string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached != nil && a.cached.Recording.Location == location {
		a.cached = nil
	}
	a.gen++
}

// Analyze returns the envelope of rec. Decoding failures wrap
// types.ErrDecodeFailure and leave the cache untouched.
func (a *Analyzer) Analyze(ctx context.Context, rec types.Recording) (types.Envelope, error) {
	a.mu.Lock()
	n, gen := a.resolution, a.gen
	if a.cached != nil && a.cached.Recording.Location == rec.Location && a.cached.Len() == n {
		env := clone(*a.cached)
		a.mu.Unlock()
		return env, nil
	}
	a.mu.Unlock()

	start := time.Now()
	pcm, err := wavfile.Decode(rec.Location)
	if err != nil {
		if !errors.Is(err, types.ErrDecodeFailure) {
			err = fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
		}
		return types.Envelope{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Envelope{}, err
	}

	env := types.Envelope{
		Samples:   Reduce(pcm.Samples, pcm.Format.Channels, pcm.FullScale(), n, a.mode),
		Recording: rec,
	}
	slog.Debug("waveform analyzed", "location", rec.Location, "resolution", n, "elapsed", time.Since(start))

	a.mu.Lock()
	if a.gen == gen {
		cached := clone(env)
		a.cached = &cached
	}
	a.mu.Unlock()
	return env, nil
}

// AnalyzeAsync runs Analyze on its own goroutine and delivers the result to fn.
func (a *Analyzer) AnalyzeAsync(ctx context.Context, rec types.Recording, fn func(types.Envelope, error)) {
	go func() {
		fn(a.Analyze(ctx, rec))
	}()
}

func clone(env types.Envelope) types.Envelope {
	env.Samples = slices.Clone(env.Samples)
	return env
}
