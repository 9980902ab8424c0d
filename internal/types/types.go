package types

import (
	"fmt"
	"time"
)

// Job status constants
const (
	StatusQueued       = "QUEUED"
	StatusProcessing   = "PROCESSING"
	StatusOK           = "OK"
	StatusFailed       = "FAILED"
	StatusFailedNoDate = "FAILED_NO_DATE"
)

// Pipeline stage names, in execution order. The numeric prefixes double
// as the remote archive layout under the bucket root.
const (
	StageFetch      = "01_source_video"
	StageAudio      = "02_audio"
	StageTranscribe = "03_transcripts"
	StageDiarize    = "04_diarization"
	StageSegments   = "05_segments"
	StageInference  = "08_inference_results"
)

// NoDateSentinel marks a video whose upload date could not be resolved.
const NoDateSentinel = "NO_DATE"

// DiarizationTurn is one speaker-attributed time interval from the
// diarization backend.
type DiarizationTurn struct {
	SpeakerID string  `json:"speaker_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Duration returns the turn length in seconds.
func (t DiarizationTurn) Duration() float64 { return t.End - t.Start }

// TranscriptWord is a single word with precise timestamps.
type TranscriptWord struct {
	Text        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// TranscriptSegment is a timestamped run of speech from the transcriber.
type TranscriptSegment struct {
	Start float64          `json:"start"`
	End   float64          `json:"end"`
	Text  string           `json:"text"`
	Words []TranscriptWord `json:"words,omitempty"`
}

// Transcript is the full output of the transcription stage.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

// AllWords flattens every word of every segment into one slice. The
// segmenter searches words by time and does not care about segment
// boundaries.
func (t *Transcript) AllWords() []TranscriptWord {
	var words []TranscriptWord
	for _, seg := range t.Segments {
		words = append(words, seg.Words...)
	}
	return words
}

// MergedTurn is a continuous span of same-speaker speech produced by
// the turn merger. The speaker is implicit (the target chair).
type MergedTurn struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (m MergedTurn) Duration() float64 { return m.End - m.Start }

// SegmentPlan is one planned sub-segment of a merged turn.
type SegmentPlan struct {
	TurnStart float64
	TurnEnd   float64
	SegStart  float64
	SegEnd    float64
	SubIndex  int
}

// Duration returns the planned clip length in seconds.
func (p SegmentPlan) Duration() float64 { return p.SegEnd - p.SegStart }

// PendingUpload is the placeholder written into metadata path fields
// before the artifact reaches the remote archive.
const PendingUpload = "PENDING_UPLOAD"

// SegmentMetadata is the JSON artifact written alongside every clip.
type SegmentMetadata struct {
	SegmentID          string  `json:"segment_id"`
	SourceVideoID      string  `json:"source_video_id"`
	VideoDate          string  `json:"video_date_yyyymmdd"`
	ChairName          string  `json:"chair_name"`
	DiarizationSpeaker string  `json:"diarization_speaker_id"`
	SegmentStart       float64 `json:"segment_start_time_s"`
	SegmentEnd         float64 `json:"segment_end_time_s"`
	SegmentDuration    float64 `json:"segment_duration_s"`
	OriginalTurnStart  float64 `json:"original_turn_start_s"`
	OriginalTurnEnd    float64 `json:"original_turn_end_s"`
	ClipFilename       string  `json:"clip_filename"`
	S3ClipPath         string  `json:"s3_clip_path"`
	S3MetadataPath     string  `json:"s3_metadata_path"`
}

// SegmentArtifact pairs an encoded clip on local disk with its metadata.
type SegmentArtifact struct {
	ClipPath string
	Meta     SegmentMetadata
}

// SegmentID builds the canonical segment identity:
// FOMC_<date8>_<videoid>_<chair>_seg<N>.
func SegmentID(videoID, date, chair string, ordinal int) string {
	return fmt.Sprintf("FOMC_%s_%s_%s_seg%d", date, videoID, chair, ordinal)
}

// VideoJob is one unit of work handed to the scheduler: a single source
// video driven through the full pipeline. The status server serializes
// snapshots of it, so the structural error lives behind json:"-" and
// ErrText carries the message over the wire.
type VideoJob struct {
	VideoID   string `json:"video_id"`
	TargetRef string `json:"target_ref"`
	Chair     string `json:"chair"`
	Date      string `json:"video_date,omitempty"` // YYYYMMDD, may be pre-resolved by the targets manifest

	Status       string    `json:"status"`
	FailedStage  string    `json:"failed_stage,omitempty"`
	Err          error     `json:"-"`
	ErrText      string    `json:"error,omitempty"`
	SegmentCount int       `json:"segment_count"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// InferenceResult is the parsed output of the multimodal emotion model
// for one segment.
type InferenceResult struct {
	SegmentInfo SegmentMetadata  `json:"input_segment_info"`
	Details     InferenceDetails `json:"inference_details"`
}

// InferenceDetails holds the raw and regex-extracted model output.
type InferenceDetails struct {
	RawModelOutput string `json:"raw_model_output"`
	ParsedThink    string `json:"parsed_think"`
	ParsedAnswer   string `json:"parsed_answer"`
	Success        bool   `json:"success"`
}
