// Command clipper turns long-form meeting recordings into short,
// chair-attributed, emotion-annotated clips. The `run` subcommand
// drives the full pipeline; `infer` runs the downstream emotion pass
// over already-archived segments.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/codebuildervaibhav/meeting-clipper/internal/cache"
	"github.com/codebuildervaibhav/meeting-clipper/internal/cleanup"
	"github.com/codebuildervaibhav/meeting-clipper/internal/config"
	"github.com/codebuildervaibhav/meeting-clipper/internal/inference"
	"github.com/codebuildervaibhav/meeting-clipper/internal/job"
	"github.com/codebuildervaibhav/meeting-clipper/internal/scheduler"
	"github.com/codebuildervaibhav/meeting-clipper/internal/segment"
	"github.com/codebuildervaibhav/meeting-clipper/internal/server"
	"github.com/codebuildervaibhav/meeting-clipper/internal/stage"
	"github.com/codebuildervaibhav/meeting-clipper/internal/store"
	"github.com/codebuildervaibhav/meeting-clipper/internal/targets"
	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

var (
	flagConfig   string
	flagParallel int
	flagTarget   float64
	flagMin      float64
	flagMax      float64
	flagGap      float64
	flagChair    string
	flagStatus   string
)

func main() {
	root := &cobra.Command{
		Use:           "clipper",
		Short:         "Meeting recording segmentation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run <targets-file>",
		Short: "Run the full pipeline over a list of videos",
		Args:  cobra.ExactArgs(1),
		RunE:  runPipeline,
	}
	runCmd.Flags().IntVarP(&flagParallel, "parallel", "p", 0, "max concurrent jobs (overrides config)")
	runCmd.Flags().Float64Var(&flagTarget, "target-duration", 0, "target segment duration in seconds")
	runCmd.Flags().Float64Var(&flagMin, "min-duration", 0, "minimum segment duration in seconds")
	runCmd.Flags().Float64Var(&flagMax, "max-duration", 0, "maximum segment duration in seconds")
	runCmd.Flags().Float64Var(&flagGap, "max-merge-gap", 0, "max gap bridged when merging turns, in seconds")
	runCmd.Flags().StringVar(&flagChair, "chair", "", "chair name for all targets (overrides config)")
	runCmd.Flags().StringVar(&flagStatus, "status-addr", "", "serve live run status on this address")

	inferCmd := &cobra.Command{
		Use:   "infer",
		Short: "Run the emotion inference pass over archived segments",
		Args:  cobra.NoArgs,
		RunE:  runInference,
	}

	root.AddCommand(runCmd, inferCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	return cfg, log, nil
}

// interruptContext cancels on SIGINT/SIGTERM so in-flight jobs can
// reclaim their scratch space before the process exits.
func interruptContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn().Msg("interrupt received, finishing in-flight jobs")
		cancel()
	}()
	return ctx, cancel
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Setup errors abort before any job runs.
	for _, bin := range []string{"ffmpeg", "ffprobe", "yt-dlp"} {
		if err := stage.LookBinary(bin); err != nil {
			return fmt.Errorf("missing required dependency %q: %w", bin, err)
		}
	}

	applyFlagOverrides(cfg)

	jobs, err := targets.Load(args[0], cfg.Pipeline.Chair)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no targets in %s", args[0])
	}

	// Every log line of a run carries the same id, so interleaved runs
	// against one bucket stay distinguishable.
	log = log.With().Str("run_id", uuid.NewString()[:8]).Logger()

	ctx, cancel := interruptContext(log)
	defer cancel()

	c, err := cache.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	if err := cleanup.EnsureScratchRoot(cfg.Pipeline.ScratchDir); err != nil {
		return fmt.Errorf("create scratch root: %w", err)
	}
	sweeper := &cleanup.Sweeper{
		ScratchRoot: cfg.Pipeline.ScratchDir,
		MaxAge:      cfg.Pipeline.SweepMaxAge,
		Log:         log,
	}
	sweeper.Sweep()

	var db *store.DB
	if cfg.Store.Database != "" {
		db, err = store.Open(cfg.Store.Database)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	runner := &job.Runner{
		Cache: c,
		Adapters: job.Adapters{
			Fetch: &stage.YtDlpFetcher{
				CookieFile:      cfg.Fetch.CookieFile,
				Format:          cfg.Fetch.Format,
				BrowserFallback: cfg.Fetch.BrowserFallback,
				Log:             log,
			},
			Audio: &stage.FFmpegExtractor{Log: log},
			Transcribe: &stage.WhisperXTranscriber{
				Model:    cfg.Whisper.Model,
				Device:   cfg.Whisper.Device,
				Language: cfg.Whisper.Language,
				Log:      log,
			},
			Diarize: &stage.PyannoteDiarizer{
				Script: cfg.Diarizer.Script,
				Device: cfg.Diarizer.Device,
				Log:    log,
			},
		},
		Encoder: segment.NewEncoder(cfg.Encoder.HWCodec, cfg.Encoder.TierTimeout, log),
		Segmenter: job.SegmenterParams{
			TargetDuration:   cfg.Segmenter.TargetDurationS,
			MinDuration:      cfg.Segmenter.MinDurationS,
			MaxDuration:      cfg.Segmenter.MaxDurationS,
			MaxMergeGap:      cfg.Segmenter.MaxMergeGapS,
			SnapTolerance:    cfg.Segmenter.SnapToleranceS,
			ExpectedSpeakers: cfg.Segmenter.ExpectedSpeakers,
		},
		Timeouts: job.Timeouts{
			Fetch:      cfg.Timeouts.Fetch,
			Extract:    cfg.Timeouts.Extract,
			Transcribe: cfg.Timeouts.Transcribe,
			Diarize:    cfg.Timeouts.Diarize,
		},
		ScratchRoot: cfg.Pipeline.ScratchDir,
		GPU:         semaphore.NewWeighted(1),
		Log:         log,
	}
	if db != nil {
		runner.OnSegment = func(m types.SegmentMetadata) {
			if err := db.RecordSegment(m); err != nil {
				log.Warn().Err(err).Str("segment_id", m.SegmentID).Msg("run index write failed")
			}
		}
	}

	sched := scheduler.New(runner, cfg.Pipeline.Parallel, log)
	if db != nil {
		sched.OnComplete = func(j *types.VideoJob) {
			if err := db.RecordJob(j); err != nil {
				log.Warn().Err(err).Msg("run index write failed")
			}
		}
	}

	if cfg.Server.StatusAddr != "" {
		st := server.New(sched, db, log)
		st.Start(cfg.Server.StatusAddr)
		defer st.Shutdown()
	}

	report := sched.Run(ctx, jobs)
	printReport(report)

	// Per-job failures are reported, not reflected in the exit code.
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flagParallel > 0 {
		cfg.Pipeline.Parallel = flagParallel
	}
	if flagTarget > 0 {
		cfg.Segmenter.TargetDurationS = flagTarget
	}
	if flagMin > 0 {
		cfg.Segmenter.MinDurationS = flagMin
	}
	if flagMax > 0 {
		cfg.Segmenter.MaxDurationS = flagMax
	}
	if flagGap > 0 {
		cfg.Segmenter.MaxMergeGapS = flagGap
	}
	if flagChair != "" {
		cfg.Pipeline.Chair = flagChair
	}
	if flagStatus != "" {
		cfg.Server.StatusAddr = flagStatus
	}
}

func printReport(r scheduler.Report) {
	fmt.Println()
	fmt.Println("========== RUN REPORT ==========")
	fmt.Printf("  total:           %d\n", r.Total)
	fmt.Printf("  succeeded:       %d\n", r.Succeeded)
	fmt.Printf("  failed:          %d\n", r.Failed)
	fmt.Printf("  failed (no date): %d\n", r.FailedNoDate)
	fmt.Println("================================")
}

func runInference(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.Inference.Command == "" {
		return fmt.Errorf("inference.command is not configured")
	}

	ctx, cancel := interruptContext(log)
	defer cancel()

	c, err := cache.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if err := cleanup.EnsureScratchRoot(cfg.Pipeline.ScratchDir); err != nil {
		return fmt.Errorf("create scratch root: %w", err)
	}

	pass := &inference.Pass{
		Cache:       c,
		Model:       &inference.ExecModel{Command: cfg.Inference.Command, Args: cfg.Inference.Args},
		Prompt:      cfg.Inference.Prompt,
		ScratchRoot: cfg.Pipeline.ScratchDir,
		Log:         log,
	}

	stats, err := pass.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("inference: %d segments, %d done, %d cached, %d failed\n",
		stats.Segments, stats.Done, stats.Cached, stats.Failed)
	return nil
}
