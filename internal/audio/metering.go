package audio

import (
	"math"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// FullScale is the magnitude of a full-scale S16 sample.
	FullScale = 32768.0
)

// LevelData holds raw sample accumulator data for level calculation.
// Channels are folded together: the meter shows one level.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	SampleCount int
}

// ProcessSamples accumulates level data from interleaved S16LE PCM.
// A trailing partial sample is ignored.
func ProcessSamples(buf []byte, data *LevelData) {
	for i := 0; i+1 < len(buf); i += types.BytesPerSample {
		s := float64(SampleAt(buf, i))
		data.SumSquares += s * s
		if a := math.Abs(s); a > data.Peak {
			data.Peak = a
		}
		data.SampleCount++
	}
}

// Level contains calculated audio levels in dB.
type Level struct {
	RMS  float64
	Peak float64
}

// CalculateLevel computes RMS and peak levels from accumulated sample data.
func CalculateLevel(data *LevelData) Level {
	if data.SampleCount == 0 {
		return Level{RMS: MinDB, Peak: MinDB}
	}

	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))
	return Level{
		RMS:  ToDB(rms / FullScale),
		Peak: ToDB(data.Peak / FullScale),
	}
}

// ResetLevelData resets accumulators for the next measurement period.
func ResetLevelData(data *LevelData) {
	*data = LevelData{}
}

// ToDB converts a linear magnitude in [0,1] to dBFS, floored at MinDB.
func ToDB(linear float64) float64 {
	if linear <= 0 {
		return MinDB
	}
	return max(20*math.Log10(linear), MinDB)
}

// MeterValue maps a dB level onto the [0,1] meter scale, linear in dB
// between MinDB and 0 dBFS.
func MeterValue(db float64) float64 {
	v := (db - MinDB) / -MinDB
	return min(max(v, 0), 1)
}
