package playback

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/wavfile"
)

// asset is a recording decoded to S16LE in memory so seeks land on exact
// frames.
type asset struct {
	format types.Format
	pcm    []byte
	frames int64
}

func loadAsset(path string) (*asset, error) {
	decoded, err := wavfile.Decode(path)
	if err != nil {
		if errors.Is(err, types.ErrAssetUnreadable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrAssetUnreadable, err)
	}

	samples := decoded.Samples
	if decoded.BitDepth != 16 {
		scale := audio.FullScale / decoded.FullScale()
		samples = make([]int, len(decoded.Samples))
		for i, s := range decoded.Samples {
			samples[i] = int(float64(s) * scale)
		}
	}

	a := &asset{
		format: decoded.Format,
		pcm:    make([]byte, len(samples)*types.BytesPerSample),
		frames: decoded.Frames(),
	}
	audio.IntsToBytes(a.pcm, samples)
	return a, nil
}

func (a *asset) duration() float64 {
	return a.format.FramesToSeconds(a.frames)
}
