// Package store keeps a local SQLite index of completed jobs and
// archived segments. The remote cache is the source of truth; this
// index exists so reports and the status server do not need to walk
// the bucket.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// DB wraps the run-index database.
type DB struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the run index at dbPath.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id TEXT NOT NULL,
		chair TEXT NOT NULL,
		video_date TEXT,
		status TEXT NOT NULL,
		failed_stage TEXT,
		error TEXT,
		segment_count INTEGER NOT NULL,
		started_at DATETIME,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		segment_id TEXT NOT NULL UNIQUE,
		video_id TEXT NOT NULL,
		start_s REAL NOT NULL,
		end_s REAL NOT NULL,
		duration_s REAL NOT NULL,
		clip_path TEXT NOT NULL,
		metadata_path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON jobs(video_id);
	CREATE INDEX IF NOT EXISTS idx_segments_video_id ON segments(video_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// RecordJob appends a terminal job outcome.
func (s *DB) RecordJob(j *types.VideoJob) error {
	var errText string
	if j.Err != nil {
		errText = j.Err.Error()
	}
	_, err := s.db.Exec(`
	INSERT INTO jobs (video_id, chair, video_date, status, failed_stage, error, segment_count, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.VideoID, j.Chair, j.Date, j.Status, j.FailedStage, errText,
		j.SegmentCount, j.StartedAt, j.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("store: record job %s: %w", j.VideoID, err)
	}
	return nil
}

// RecordSegment upserts one archived segment.
func (s *DB) RecordSegment(m types.SegmentMetadata) error {
	_, err := s.db.Exec(`
	INSERT INTO segments (segment_id, video_id, start_s, end_s, duration_s, clip_path, metadata_path, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(segment_id) DO UPDATE SET
		clip_path = excluded.clip_path,
		metadata_path = excluded.metadata_path`,
		m.SegmentID, m.SourceVideoID, m.SegmentStart, m.SegmentEnd,
		m.SegmentDuration, m.S3ClipPath, m.S3MetadataPath, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: record segment %s: %w", m.SegmentID, err)
	}
	return nil
}

// JobRow is one row of the jobs listing.
type JobRow struct {
	VideoID      string    `json:"video_id"`
	Chair        string    `json:"chair"`
	VideoDate    string    `json:"video_date"`
	Status       string    `json:"status"`
	FailedStage  string    `json:"failed_stage,omitempty"`
	Error        string    `json:"error,omitempty"`
	SegmentCount int       `json:"segment_count"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ListJobs returns the most recent job outcomes.
func (s *DB) ListJobs(limit int) ([]JobRow, error) {
	rows, err := s.db.Query(`
	SELECT video_id, chair, COALESCE(video_date, ''), status,
	       COALESCE(failed_stage, ''), COALESCE(error, ''), segment_count, finished_at
	FROM jobs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var r JobRow
		if err := rows.Scan(&r.VideoID, &r.Chair, &r.VideoDate, &r.Status,
			&r.FailedStage, &r.Error, &r.SegmentCount, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("store: scan job row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}
