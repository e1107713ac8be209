// Package wavfile reads and writes the WAV container recordings are stored in.
package wavfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
)

// Extension is the file extension of finalized recordings.
const Extension = ".wav"

// PCM is a fully decoded asset. Samples are interleaved.
type PCM struct {
	Format   types.Format
	BitDepth int
	Samples  []int
}

// Frames returns the number of frames in p.
func (p *PCM) Frames() int64 {
	if p.Format.Channels == 0 {
		return 0
	}
	return int64(len(p.Samples) / p.Format.Channels)
}

// Duration returns the decodable length of p in seconds.
func (p *PCM) Duration() float64 {
	return p.Format.FramesToSeconds(p.Frames())
}

// FullScale returns the magnitude of a full-scale sample at p's bit depth.
func (p *PCM) FullScale() float64 {
	if p.BitDepth <= 0 {
		return audio.FullScale
	}
	return float64(int64(1) << (p.BitDepth - 1))
}

// open opens path for decoding. A missing or unopenable file is
// ErrAssetUnreadable; a file that is not a WAV container is ErrDecodeFailure.
func open(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s does not exist", types.ErrAssetUnreadable, path)
		}
		return nil, nil, fmt.Errorf("%w: %w", types.ErrAssetUnreadable, err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		util.SafeClose(f, "wav file")
		return nil, nil, fmt.Errorf("%w: %s is not a valid WAV file", types.ErrDecodeFailure, path)
	}
	if err := d.FwdToPCM(); err != nil {
		util.SafeClose(f, "wav file")
		return nil, nil, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
	}
	return f, d, nil
}

func formatOf(d *wav.Decoder) types.Format {
	return types.Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
}

// Probe reads only the header of path and returns its format and length in
// frames.
func Probe(path string) (types.Format, int64, error) {
	f, d, err := open(path)
	if err != nil {
		return types.Format{}, 0, err
	}
	defer util.SafeCloseFunc(f, "wav file")()

	format := formatOf(d)
	frameBytes := int64(format.Channels) * int64((d.BitDepth+7)/8)
	if frameBytes == 0 {
		return format, 0, fmt.Errorf("%w: %s has no channels", types.ErrDecodeFailure, path)
	}
	return format, int64(d.PCMSize) / frameBytes, nil
}

// Decode reads the whole asset at path into memory.
func Decode(path string) (*PCM, error) {
	f, d, err := open(path)
	if err != nil {
		return nil, err
	}
	defer util.SafeCloseFunc(f, "wav file")()

	pcm := &PCM{Format: formatOf(d), BitDepth: int(d.BitDepth)}
	if pcm.Format.Channels == 0 || pcm.Format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %s has an empty format", types.ErrDecodeFailure, path)
	}
	if d.PCMSize == 0 {
		return pcm, nil
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
	}
	pcm.Samples = buf.Data
	// Drop a trailing partial frame from a truncated file.
	pcm.Samples = pcm.Samples[:len(pcm.Samples)-len(pcm.Samples)%pcm.Format.Channels]
	return pcm, nil
}

// Writer encodes S16LE PCM into a WAV file, counting whole frames written.
type Writer struct {
	file   *os.File
	enc    *wav.Encoder
	format types.Format
	buf    *goaudio.IntBuffer
	carry  []byte
	frames int64
}

// Create creates path and writes a WAV header for f.
func Create(path string, f types.Format) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}

	w := &Writer{
		file:   file,
		enc:    wav.NewEncoder(file, f.SampleRate, 16, f.Channels, 1),
		format: f,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: 16,
		},
	}
	// An empty write emits the header, so a zero-length take is still a
	// valid file.
	if err := w.enc.Write(w.buf); err != nil {
		util.SafeClose(file, "wav file")
		return nil, fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}
	return w, nil
}

// Write appends pcm. Bytes that do not complete a frame are held until the
// next call.
func (w *Writer) Write(pcm []byte) error {
	frameSize := w.format.FrameSize()
	if len(w.carry) > 0 {
		pcm = append(w.carry, pcm...)
		w.carry = nil
	}
	whole := len(pcm) - len(pcm)%frameSize
	if whole < len(pcm) {
		w.carry = append([]byte(nil), pcm[whole:]...)
	}
	if whole == 0 {
		return nil
	}

	w.buf.Data = audio.BytesToInts(w.buf.Data[:0], pcm[:whole])
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}
	w.frames += int64(whole / frameSize)
	return nil
}

// Frames returns the number of whole frames written so far.
func (w *Writer) Frames() int64 {
	return w.frames
}

// Duration returns the written length in seconds.
func (w *Writer) Duration() float64 {
	return w.format.FramesToSeconds(w.frames)
}

// Close finalizes the header and closes the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}
	return nil
}
