package ffmpeg

import (
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestExtractLastError(t *testing.T) {
	assert.Equal(t, "", ExtractLastError(""))
	assert.Equal(t, "last", ExtractLastError("first\nlast\n  \n"))

	long := strings.Repeat("x", 300)
	got := ExtractLastError(long)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestCaptureArgsDescribeFormat(t *testing.T) {
	args := CaptureArgs("avfoundation", ":0", types.Format{SampleRate: 44100, Channels: 1})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f avfoundation -i :0")
	assert.Contains(t, joined, "-f s16le -ar 44100 -ac 1")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestPlaybackArgsReadStdin(t *testing.T) {
	args := PlaybackArgs(types.Format{SampleRate: 48000, Channels: 2})
	assert.Equal(t, []string{"-i", "pipe:0"}, args[len(args)-2:])
	assert.Contains(t, args, "-autoexit")
}
