// Package scheduler fans video jobs out over a bounded worker pool and
// reduces their terminal statuses into an aggregate report.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/meeting-clipper/internal/job"
	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// Report is the aggregate outcome of a run. Counters are reduced from
// completed job results, never written concurrently by workers.
type Report struct {
	Total        int `json:"total"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	FailedNoDate int `json:"failed_no_date"`
}

// Event is one job status transition, published to subscribers (the
// status server's websocket feed).
type Event struct {
	VideoID  string    `json:"video_id"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Segments int       `json:"segments,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Scheduler runs many video jobs with bounded concurrency. One job's
// failure never cancels or blocks the others.
type Scheduler struct {
	Runner   *job.Runner
	Parallel int
	// OnComplete, if set, observes every terminal job (the run-index DB
	// hook). Called from worker goroutines, one job at a time per worker.
	OnComplete func(*types.VideoJob)

	Log zerolog.Logger

	// snapshot holds immutable value copies of each job, refreshed under
	// mu at status transitions. Workers mutate the live *VideoJob freely
	// between transitions; Snapshot only ever reads the copies.
	mu       sync.Mutex
	snapshot map[string]types.VideoJob
	subs     map[chan Event]struct{}
}

// New creates a scheduler with the given worker width.
func New(runner *job.Runner, parallel int, log zerolog.Logger) *Scheduler {
	if parallel < 1 {
		parallel = 1
	}
	return &Scheduler{
		Runner:   runner,
		Parallel: parallel,
		Log:      log,
		snapshot: make(map[string]types.VideoJob),
		subs:     make(map[chan Event]struct{}),
	}
}

// Run executes all jobs and returns the aggregate report. Workers pull
// from a shared queue, so a finished slot admits the next target
// immediately. Context cancellation stops admission; in-flight jobs run
// to completion so their scratch cleanup still happens.
func (s *Scheduler) Run(ctx context.Context, jobs []*types.VideoJob) Report {
	queue := make(chan *types.VideoJob)
	results := make(chan *types.VideoJob, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < s.Parallel; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id, queue, results)
		}(i)
	}

	s.Log.Info().Int("jobs", len(jobs)).Int("parallel", s.Parallel).Msg("run started")

admission:
	for _, j := range jobs {
		s.track(j)
		select {
		case queue <- j:
		case <-ctx.Done():
			s.Log.Warn().Msg("interrupted, no further jobs admitted")
			break admission
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	var report Report
	report.Total = len(jobs)
	for j := range results {
		switch j.Status {
		case types.StatusOK:
			report.Succeeded++
		case types.StatusFailedNoDate:
			report.Failed++
			report.FailedNoDate++
		default:
			report.Failed++
		}
	}

	s.Log.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("failed_no_date", report.FailedNoDate).
		Msg("run complete")

	// The run is over; release any event listeners still attached.
	s.mu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()

	return report
}

// worker processes jobs from the queue until it closes.
func (s *Scheduler) worker(ctx context.Context, id int, queue <-chan *types.VideoJob, results chan<- *types.VideoJob) {
	log := s.Log.With().Int("worker", id).Logger()
	for j := range queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("video_id", j.VideoID).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("worker panic")
					j.Status = types.StatusFailed
					j.Err = fmt.Errorf("worker panic: %v", r)
				}
			}()

			log.Info().Str("video_id", j.VideoID).Msg("job started")
			cp := *j
			cp.Status = types.StatusProcessing
			s.store(cp)
			s.publish(Event{VideoID: j.VideoID, Status: types.StatusProcessing, At: time.Now()})
			s.Runner.Run(ctx, j)
		}()

		j.ErrText = errString(j.Err)
		s.store(*j)

		if s.OnComplete != nil {
			s.OnComplete(j)
		}
		s.publish(Event{
			VideoID:  j.VideoID,
			Status:   j.Status,
			Stage:    j.FailedStage,
			Segments: j.SegmentCount,
			Error:    j.ErrText,
			At:       time.Now(),
		})
		results <- j
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Scheduler) track(j *types.VideoJob) {
	s.store(*j)
}

func (s *Scheduler) store(cp types.VideoJob) {
	s.mu.Lock()
	s.snapshot[cp.VideoID] = cp
	s.mu.Unlock()
}

// Snapshot returns every tracked job's last published state, for the
// status server.
func (s *Scheduler) Snapshot() []types.VideoJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.VideoJob, 0, len(s.snapshot))
	for _, j := range s.snapshot {
		out = append(out, j)
	}
	return out
}

// Subscribe registers an event listener. The returned cancel func must
// be called to release the subscription. Slow listeners drop events
// rather than stalling workers.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Scheduler) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
