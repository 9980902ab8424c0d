// Package stage holds the external pipeline stage adapters: fetch,
// audio extraction, transcription and diarization. Each adapter is a
// black box invoked through a narrow contract; the pipeline only cares
// about the artifacts they produce.
package stage

import (
	"context"
	"os/exec"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// FetchResult is the structured output of the fetch stage: the local
// video file plus the upload-date side output. UploadDate is empty when
// the date could not be resolved.
type FetchResult struct {
	VideoPath  string
	UploadDate string // YYYYMMDD or ""
}

// Fetcher downloads a source video and resolves its upload date.
type Fetcher interface {
	Fetch(ctx context.Context, targetRef, destPath string) (*FetchResult, error)
}

// AudioExtractor produces a mono 16 kHz PCM audio file from a video.
type AudioExtractor interface {
	Extract(ctx context.Context, videoPath, destPath string) error
}

// Transcriber produces a word-timestamped transcript from an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error)
}

// Diarizer partitions an audio file into speaker-attributed turns.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, expectedSpeakers int) ([]types.DiarizationTurn, error)
}

// runCommand executes an external tool and returns its combined output.
// Package-level so tests can substitute a fake.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LookBinary reports whether a required external binary is on PATH.
// Used by the CLI's setup check before any job runs.
func LookBinary(name string) error {
	_, err := exec.LookPath(name)
	return err
}
