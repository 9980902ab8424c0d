package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withFakeCommand swaps the package command runner for the duration of
// a test.
func withFakeCommand(t *testing.T, fake func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	t.Helper()
	orig := runCommand
	runCommand = fake
	t.Cleanup(func() { runCommand = orig })
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestFetchDownloadsAndProbesDate(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "video.mp4")
	var calls [][]string
	withFakeCommand(t, func(_ context.Context, name string, args ...string) ([]byte, error) {
		require.Equal(t, "yt-dlp", name)
		calls = append(calls, args)
		if hasArg(args, "--skip-download") {
			return []byte("20240131\n"), nil
		}
		return nil, os.WriteFile(dest, []byte("video"), 0o644)
	})

	f := &YtDlpFetcher{Log: zerolog.Nop()}
	res, err := f.Fetch(context.Background(), "https://www.youtube.com/watch?v=aaaaaaaaaaa", dest)
	require.NoError(t, err)

	assert.Equal(t, dest, res.VideoPath)
	assert.Equal(t, "20240131", res.UploadDate)
	require.Len(t, calls, 2)
	assert.True(t, hasArg(calls[0], "--no-playlist"))
	assert.True(t, hasArg(calls[0], "mp4"))
}

func TestFetchMissingDateIsNotAnError(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "video.mp4")
	withFakeCommand(t, func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if hasArg(args, "--skip-download") {
			// yt-dlp prints "NA" when the field is absent.
			return []byte("NA\n"), nil
		}
		return nil, os.WriteFile(dest, []byte("video"), 0o644)
	})

	f := &YtDlpFetcher{Log: zerolog.Nop()} // browser fallback disabled
	res, err := f.Fetch(context.Background(), "https://www.youtube.com/watch?v=aaaaaaaaaaa", dest)
	require.NoError(t, err)
	assert.Empty(t, res.UploadDate)
}

func TestFetchPassesCookieFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "video.mp4")
	withFakeCommand(t, func(_ context.Context, _ string, args ...string) ([]byte, error) {
		assert.True(t, hasArg(args, "--cookies"))
		assert.True(t, hasArg(args, "cookies.txt"))
		if hasArg(args, "--skip-download") {
			return []byte("20240131\n"), nil
		}
		return nil, os.WriteFile(dest, []byte("video"), 0o644)
	})

	f := &YtDlpFetcher{CookieFile: "cookies.txt", Log: zerolog.Nop()}
	_, err := f.Fetch(context.Background(), "https://www.youtube.com/watch?v=aaaaaaaaaaa", dest)
	require.NoError(t, err)
}

func TestProbeUploadDateRejectsNonDates(t *testing.T) {
	for _, printed := range []string{"NA", "", "2024-01-31", "today", "202401311"} {
		withFakeCommand(t, func(context.Context, string, ...string) ([]byte, error) {
			return []byte(printed + "\n"), nil
		})
		f := &YtDlpFetcher{Log: zerolog.Nop()}
		date, err := f.probeUploadDate(context.Background(), "ref")
		require.NoError(t, err)
		assert.Empty(t, date, "printed %q", printed)
	}
}
