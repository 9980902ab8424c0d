// Package job drives a single video through the pipeline stages:
// fetch, audio extraction, transcription, diarization, segmentation and
// upload. Every stage checks the artifact cache before doing work, so
// re-running a job is always safe.
package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/codebuildervaibhav/meeting-clipper/internal/cache"
	"github.com/codebuildervaibhav/meeting-clipper/internal/segment"
	"github.com/codebuildervaibhav/meeting-clipper/internal/stage"
	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// ErrNoDate signals that the fetch stage could not resolve the video's
// upload date. Distinguished from generic stage failure because it is
// almost always an expired-credential problem, not a processing bug.
var ErrNoDate = errors.New("job: upload date could not be resolved")

// Adapters bundles the four external stage collaborators.
type Adapters struct {
	Fetch      stage.Fetcher
	Audio      stage.AudioExtractor
	Transcribe stage.Transcriber
	Diarize    stage.Diarizer
}

// Timeouts bounds each external stage invocation.
type Timeouts struct {
	Fetch      time.Duration
	Extract    time.Duration
	Transcribe time.Duration
	Diarize    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Fetch == 0 {
		t.Fetch = 30 * time.Minute
	}
	if t.Extract == 0 {
		t.Extract = 10 * time.Minute
	}
	if t.Transcribe == 0 {
		t.Transcribe = 60 * time.Minute
	}
	if t.Diarize == 0 {
		t.Diarize = 60 * time.Minute
	}
	return t
}

// SegmenterParams are the tunables of the segmentation stage.
type SegmenterParams struct {
	TargetDuration   float64
	MinDuration      float64
	MaxDuration      float64
	MaxMergeGap      float64
	SnapTolerance    float64
	ExpectedSpeakers int
}

// Runner executes video jobs. One Runner is shared by all workers; all
// per-job state lives in the VideoJob and the job's scratch directory.
type Runner struct {
	Cache       cache.Cache
	Adapters    Adapters
	Encoder     *segment.Encoder
	Segmenter   SegmenterParams
	Timeouts    Timeouts
	ScratchRoot string

	// GPU serializes diarization across concurrent jobs; one
	// accelerator is shared by the whole run. Held only for the
	// duration of the diarization call.
	GPU *semaphore.Weighted

	// OnSegment, if set, observes every durably archived segment (the
	// run-index hook). Called after the clip and its metadata are both
	// stored.
	OnSegment func(types.SegmentMetadata)

	Log zerolog.Logger
}

// Run drives the job to a terminal status. Errors never escape: they
// are converted into the job's Status/Err fields so the scheduler only
// ever observes a status code.
func (r *Runner) Run(ctx context.Context, j *types.VideoJob) {
	log := r.Log.With().Str("video_id", j.VideoID).Logger()
	timeouts := r.Timeouts.withDefaults()

	j.Status = types.StatusProcessing
	j.StartedAt = time.Now()
	defer func() { j.FinishedAt = time.Now() }()

	scratch := filepath.Join(r.ScratchRoot, j.VideoID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		r.fail(j, "setup", fmt.Errorf("job: create scratch dir: %w", err))
		return
	}
	// Scratch is reclaimed on every exit path, success or failure.
	defer os.RemoveAll(scratch)

	// Early exit: segments already archived means the whole job is done.
	if done, n := r.segmentsCached(ctx, j.VideoID); done {
		log.Info().Int("segments", n).Msg("segments already in cache, skipping job")
		j.Status = types.StatusOK
		j.SegmentCount = n
		return
	}

	videoPath, date, err := r.runFetch(ctx, j, scratch, timeouts.Fetch, log)
	if err != nil {
		if errors.Is(err, ErrNoDate) {
			j.Status = types.StatusFailedNoDate
			j.FailedStage = types.StageFetch
			j.Err = err
			log.Error().Msg("no upload date; credentials likely expired")
			return
		}
		r.fail(j, types.StageFetch, err)
		return
	}
	j.Date = date

	audioPath, err := r.runExtract(ctx, j, scratch, videoPath, timeouts.Extract, log)
	if err != nil {
		r.fail(j, types.StageAudio, err)
		return
	}

	transcript, err := r.runTranscribe(ctx, j, audioPath, timeouts.Transcribe, log)
	if err != nil {
		r.fail(j, types.StageTranscribe, err)
		return
	}

	turns, err := r.runDiarize(ctx, j, audioPath, timeouts.Diarize, log)
	if err != nil {
		r.fail(j, types.StageDiarize, err)
		return
	}

	artifacts := r.runSegment(ctx, j, scratch, videoPath, transcript, turns, log)

	if err := r.runUpload(ctx, j, artifacts, log); err != nil {
		r.fail(j, "upload", err)
		return
	}

	j.Status = types.StatusOK
	j.SegmentCount = len(artifacts)
	log.Info().Int("segments", len(artifacts)).Msg("job complete")
}

func (r *Runner) fail(j *types.VideoJob, stageName string, err error) {
	j.Status = types.StatusFailed
	j.FailedStage = stageName
	j.Err = err
	r.Log.Error().Str("video_id", j.VideoID).Str("stage", stageName).Err(err).Msg("job failed")
}

// segmentsCached reports whether segment artifacts already exist for
// this video, counting archived clips.
func (r *Runner) segmentsCached(ctx context.Context, videoID string) (bool, int) {
	keys, err := r.Cache.List(ctx, cache.StagePrefix(types.StageSegments, videoID))
	if err != nil {
		r.Log.Warn().Err(err).Str("video_id", videoID).Msg("segment cache listing failed")
		return false, 0
	}
	n := 0
	for _, k := range keys {
		if strings.HasSuffix(k, ".mp4") {
			n++
		}
	}
	return len(keys) > 0, n
}

// runFetch produces the local source video and its upload date,
// honoring the cache. Failure to resolve a date is ErrNoDate.
func (r *Runner) runFetch(ctx context.Context, j *types.VideoJob, scratch string, timeout time.Duration, log zerolog.Logger) (string, string, error) {
	videoKey := cache.Key(types.StageFetch, j.VideoID, "video.mp4")
	dateKey := cache.Key(types.StageFetch, j.VideoID, "upload_date.txt")
	videoPath := filepath.Join(scratch, "video.mp4")

	videoCached, err := r.Cache.Exists(ctx, videoKey)
	if err != nil {
		return "", "", fmt.Errorf("job: fetch cache check: %w", err)
	}
	if videoCached {
		log.Info().Msg("source video cached, downloading")
		if err := r.Cache.Download(ctx, videoKey, videoPath); err != nil {
			return "", "", fmt.Errorf("job: download cached video: %w", err)
		}
		date := j.Date
		if data, err := r.Cache.Get(ctx, dateKey); err == nil {
			if d := strings.TrimSpace(string(data)); d != "" && d != types.NoDateSentinel {
				date = d
			}
		}
		if date == "" {
			return "", "", ErrNoDate
		}
		return videoPath, date, nil
	}

	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := r.Adapters.Fetch.Fetch(fctx, j.TargetRef, videoPath)
	if err != nil {
		return "", "", fmt.Errorf("job: fetch: %w", err)
	}

	// Archive the download even if the date is missing: a retry after
	// fresh credentials should not re-download gigabytes of video.
	if err := r.Cache.Upload(ctx, videoKey, res.VideoPath); err != nil {
		log.Warn().Err(err).Msg("caching source video failed, continuing")
	}

	date := res.UploadDate
	if date == "" {
		date = j.Date // manifest override, if any
	}
	if date == "" {
		return "", "", ErrNoDate
	}
	if err := r.Cache.Put(ctx, dateKey, []byte(date)); err != nil {
		log.Warn().Err(err).Msg("caching upload date failed, continuing")
	}
	return res.VideoPath, date, nil
}

// runExtract produces the 16 kHz mono audio artifact.
func (r *Runner) runExtract(ctx context.Context, j *types.VideoJob, scratch, videoPath string, timeout time.Duration, log zerolog.Logger) (string, error) {
	audioKey := cache.Key(types.StageAudio, j.VideoID, "audio.wav")
	audioPath := filepath.Join(scratch, "audio.wav")

	cached, err := r.Cache.Exists(ctx, audioKey)
	if err != nil {
		return "", fmt.Errorf("job: audio cache check: %w", err)
	}
	if cached {
		log.Info().Msg("audio cached, downloading")
		if err := r.Cache.Download(ctx, audioKey, audioPath); err != nil {
			return "", fmt.Errorf("job: download cached audio: %w", err)
		}
		return audioPath, nil
	}

	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.Adapters.Audio.Extract(ectx, videoPath, audioPath); err != nil {
		return "", fmt.Errorf("job: extract audio: %w", err)
	}
	if err := r.Cache.Upload(ctx, audioKey, audioPath); err != nil {
		log.Warn().Err(err).Msg("caching audio failed, continuing")
	}
	return audioPath, nil
}

// runTranscribe produces the word-timestamped transcript artifact.
func (r *Runner) runTranscribe(ctx context.Context, j *types.VideoJob, audioPath string, timeout time.Duration, log zerolog.Logger) (*types.Transcript, error) {
	key := cache.Key(types.StageTranscribe, j.VideoID, "transcript.json")

	if data, err := r.Cache.Get(ctx, key); err == nil {
		log.Info().Msg("transcript cached")
		var tr types.Transcript
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("job: parse cached transcript: %w", err)
		}
		return &tr, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("job: transcript cache check: %w", err)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tr, err := r.Adapters.Transcribe.Transcribe(tctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("job: transcribe: %w", err)
	}

	if data, err := json.Marshal(tr); err == nil {
		if err := r.Cache.Put(ctx, key, data); err != nil {
			log.Warn().Err(err).Msg("caching transcript failed, continuing")
		}
	}
	return tr, nil
}

// runDiarize produces the speaker turns, serializing GPU access across
// concurrent jobs.
func (r *Runner) runDiarize(ctx context.Context, j *types.VideoJob, audioPath string, timeout time.Duration, log zerolog.Logger) ([]types.DiarizationTurn, error) {
	key := cache.Key(types.StageDiarize, j.VideoID, "diarization.txt")

	if data, err := r.Cache.Get(ctx, key); err == nil {
		log.Info().Msg("diarization cached")
		return stage.ParseTurns(bytes.NewReader(data))
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("job: diarization cache check: %w", err)
	}

	turns, err := r.diarizeLocked(ctx, audioPath, timeout, log)
	if err != nil {
		return nil, fmt.Errorf("job: diarize: %w", err)
	}

	if err := r.Cache.Put(ctx, key, stage.FormatTurns(turns)); err != nil {
		log.Warn().Err(err).Msg("caching diarization failed, continuing")
	}
	return turns, nil
}

// diarizeLocked holds the GPU lock for exactly the duration of the
// diarization call; release is guaranteed on every exit path.
func (r *Runner) diarizeLocked(ctx context.Context, audioPath string, timeout time.Duration, log zerolog.Logger) ([]types.DiarizationTurn, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.GPU != nil {
		if err := r.GPU.Acquire(dctx, 1); err != nil {
			return nil, fmt.Errorf("acquire gpu lock: %w", err)
		}
		defer r.GPU.Release(1)
		log.Debug().Msg("gpu lock acquired")
	}
	return r.Adapters.Diarize.Diarize(dctx, audioPath, r.Segmenter.ExpectedSpeakers)
}

// runSegment runs the segmentation engine and encodes clips. Zero
// successful segments is a legitimate outcome, and per-segment encode
// failures are counted, not raised.
func (r *Runner) runSegment(ctx context.Context, j *types.VideoJob, scratch, videoPath string, transcript *types.Transcript, turns []types.DiarizationTurn, log zerolog.Logger) []types.SegmentArtifact {
	chairSpeaker := segment.TargetSpeaker(turns)
	chairTurns := segment.FilterSpeaker(turns, chairSpeaker)
	merged := segment.MergeTurns(chairTurns, r.Segmenter.MinDuration, r.Segmenter.MaxMergeGap)
	if len(merged) == 0 {
		log.Info().Str("speaker", chairSpeaker).Msg("no qualifying chair turns; job completes with zero segments")
		return nil
	}

	planner := &segment.Planner{
		Params: segment.PlannerParams{
			Target:    r.Segmenter.TargetDuration,
			Min:       r.Segmenter.MinDuration,
			Max:       r.Segmenter.MaxDuration,
			Tolerance: r.Segmenter.SnapTolerance,
		},
		Log: log,
	}
	words := transcript.AllWords()

	var artifacts []types.SegmentArtifact
	ordinal := 0
	failed := 0
	for _, turn := range merged {
		for _, plan := range planner.Plan(turn, words) {
			segID := types.SegmentID(j.VideoID, j.Date, j.Chair, ordinal)
			ordinal++

			clipPath := filepath.Join(scratch, segID+".mp4")
			if err := r.Encoder.Encode(ctx, videoPath, plan.SegStart, plan.SegEnd, clipPath); err != nil {
				failed++
				log.Warn().Str("segment_id", segID).Err(err).Msg("segment encode failed, skipping")
				continue
			}

			artifacts = append(artifacts, types.SegmentArtifact{
				ClipPath: clipPath,
				Meta: types.SegmentMetadata{
					SegmentID:          segID,
					SourceVideoID:      j.VideoID,
					VideoDate:          j.Date,
					ChairName:          j.Chair,
					DiarizationSpeaker: chairSpeaker,
					SegmentStart:       plan.SegStart,
					SegmentEnd:         plan.SegEnd,
					SegmentDuration:    plan.Duration(),
					OriginalTurnStart:  plan.TurnStart,
					OriginalTurnEnd:    plan.TurnEnd,
					ClipFilename:       segID + ".mp4",
					S3ClipPath:         types.PendingUpload,
					S3MetadataPath:     types.PendingUpload,
				},
			})
		}
	}

	log.Info().
		Int("merged_turns", len(merged)).
		Int("encoded", len(artifacts)).
		Int("failed", failed).
		Msg("segmentation complete")
	return artifacts
}

// runUpload archives every clip and its metadata. The first failure
// aborts the stage: once segments are expected to be durable there is
// no point continuing. Partial uploads are left in place for debugging.
func (r *Runner) runUpload(ctx context.Context, j *types.VideoJob, artifacts []types.SegmentArtifact, log zerolog.Logger) error {
	for i := range artifacts {
		a := &artifacts[i]
		clipKey := cache.Key(types.StageSegments, j.VideoID, a.Meta.ClipFilename)
		metaKey := cache.Key(types.StageSegments, j.VideoID, a.Meta.SegmentID+".json")

		if err := r.Cache.Upload(ctx, clipKey, a.ClipPath); err != nil {
			return fmt.Errorf("job: upload clip %s: %w", a.Meta.SegmentID, err)
		}

		// Placeholders become real locations only now that the clip is
		// durably stored.
		a.Meta.S3ClipPath = r.Cache.Locator(clipKey)
		a.Meta.S3MetadataPath = r.Cache.Locator(metaKey)

		data, err := json.MarshalIndent(a.Meta, "", "  ")
		if err != nil {
			return fmt.Errorf("job: marshal metadata %s: %w", a.Meta.SegmentID, err)
		}
		if err := r.Cache.Put(ctx, metaKey, data); err != nil {
			return fmt.Errorf("job: upload metadata %s: %w", a.Meta.SegmentID, err)
		}

		if r.OnSegment != nil {
			r.OnSegment(a.Meta)
		}
		log.Debug().Str("segment_id", a.Meta.SegmentID).Msg("segment uploaded")
	}
	return nil
}
