package segment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner scripts the ffmpeg/ffprobe invocations the encoder makes.
// Each ffmpeg call writes the output file (last argument) so that the
// subsequent probe sees one; ffprobe answers from the script.
type fakeRunner struct {
	t *testing.T

	// probeAnswers are returned for successive ffprobe calls.
	probeAnswers []string
	// failTiers holds encoder tier codec args whose ffmpeg call should
	// fail outright (e.g. "copy", "h264_nvenc", "libx264").
	failTiers map[string]bool

	ffmpegCalls  [][]string
	ffprobeCalls int
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	switch name {
	case "ffmpeg":
		f.ffmpegCalls = append(f.ffmpegCalls, args)
		out := args[len(args)-1]
		if f.failTiers[tierOf(args)] {
			return []byte("ffmpeg: broken pipe"), os.ErrInvalid
		}
		require.NoError(f.t, os.WriteFile(out, []byte("mp4"), 0o644))
		return nil, nil
	case "ffprobe":
		i := f.ffprobeCalls
		f.ffprobeCalls++
		require.Less(f.t, i, len(f.probeAnswers), "unexpected ffprobe call")
		return []byte(f.probeAnswers[i] + "\n"), nil
	default:
		f.t.Fatalf("unexpected command %q", name)
		return nil, nil
	}
}

// tierOf identifies which encode tier an ffmpeg argv belongs to by its
// codec argument.
func tierOf(args []string) string {
	for i, a := range args {
		if (a == "-c" || a == "-c:v") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestEncoder(f *fakeRunner) *Encoder {
	e := NewEncoder("h264_nvenc", 0, zerolog.Nop())
	e.run = f.run
	return e
}

func TestEncodeCopyTierSucceeds(t *testing.T) {
	f := &fakeRunner{t: t, probeAnswers: []string{"video"}}
	e := newTestEncoder(f)
	out := filepath.Join(t.TempDir(), "clip.mp4")

	require.NoError(t, e.Encode(context.Background(), "src.mp4", 10, 30, out))
	assert.Len(t, f.ffmpegCalls, 1)
	assert.Equal(t, "copy", tierOf(f.ffmpegCalls[0]))
	assert.FileExists(t, out)
}

func TestEncodeFallsThroughOnInvalidStream(t *testing.T) {
	// The copy tier produces a file with no video stream; the encoder
	// must advance to the hardware tier, not retry the copy.
	f := &fakeRunner{t: t, probeAnswers: []string{"audio", "video"}}
	e := newTestEncoder(f)
	out := filepath.Join(t.TempDir(), "clip.mp4")

	require.NoError(t, e.Encode(context.Background(), "src.mp4", 10, 30, out))
	require.Len(t, f.ffmpegCalls, 2)
	assert.Equal(t, "copy", tierOf(f.ffmpegCalls[0]))
	assert.Equal(t, "h264_nvenc", tierOf(f.ffmpegCalls[1]))
	assert.FileExists(t, out)
}

func TestEncodeAllTiersFail(t *testing.T) {
	f := &fakeRunner{
		t:         t,
		failTiers: map[string]bool{"copy": true, "h264_nvenc": true, "libx264": true},
	}
	e := newTestEncoder(f)
	out := filepath.Join(t.TempDir(), "clip.mp4")

	err := e.Encode(context.Background(), "src.mp4", 10, 30, out)
	require.Error(t, err)
	assert.Len(t, f.ffmpegCalls, 3)
	assert.NoFileExists(t, out, "failed encode must not leave a partial clip")
}

func TestEncodeSkipsHardwareTierWhenDisabled(t *testing.T) {
	f := &fakeRunner{
		t:            t,
		failTiers:    map[string]bool{"copy": true},
		probeAnswers: []string{"video"},
	}
	e := NewEncoder("", 0, zerolog.Nop())
	e.run = f.run
	out := filepath.Join(t.TempDir(), "clip.mp4")

	require.NoError(t, e.Encode(context.Background(), "src.mp4", 0, 15, out))
	require.Len(t, f.ffmpegCalls, 2)
	assert.Equal(t, "libx264", tierOf(f.ffmpegCalls[1]))
}

func TestEncodeRejectsInvalidInterval(t *testing.T) {
	e := NewEncoder("", 0, zerolog.Nop())
	assert.Error(t, e.Encode(context.Background(), "src.mp4", 30, 30, "out.mp4"))
	assert.Error(t, e.Encode(context.Background(), "src.mp4", 31, 30, "out.mp4"))
}

func TestHasVideoStreamMissingFile(t *testing.T) {
	e := NewEncoder("", 0, zerolog.Nop())
	ok, err := e.HasVideoStream(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	require.NoError(t, err)
	assert.False(t, ok)
}
