// Package config loads the application configuration: a YAML file with
// CLIPPER_-prefixed environment overrides and sane defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/codebuildervaibhav/meeting-clipper/internal/cache"
)

// Config is the full application configuration.
type Config struct {
	Pipeline  Pipeline     `mapstructure:"pipeline"`
	Segmenter Segmenter    `mapstructure:"segmenter"`
	Encoder   Encoder      `mapstructure:"encoder"`
	Timeouts  Timeouts     `mapstructure:"timeouts"`
	Storage   cache.Config `mapstructure:"storage"`
	Store     Store        `mapstructure:"store"`
	Fetch     Fetch        `mapstructure:"fetch"`
	Whisper   Whisper      `mapstructure:"whisper"`
	Diarizer  Diarizer     `mapstructure:"diarizer"`
	Inference Inference    `mapstructure:"inference"`
	Server    Server       `mapstructure:"server"`
	Log       Log          `mapstructure:"log"`
}

type Pipeline struct {
	Parallel    int           `mapstructure:"parallel"`
	ScratchDir  string        `mapstructure:"scratch_dir"`
	Chair       string        `mapstructure:"chair"`
	SweepMaxAge time.Duration `mapstructure:"sweep_max_age"`
}

type Segmenter struct {
	TargetDurationS  float64 `mapstructure:"target_duration_s"`
	MinDurationS     float64 `mapstructure:"min_duration_s"`
	MaxDurationS     float64 `mapstructure:"max_duration_s"`
	MaxMergeGapS     float64 `mapstructure:"max_merge_gap_s"`
	SnapToleranceS   float64 `mapstructure:"snap_tolerance_s"`
	ExpectedSpeakers int     `mapstructure:"expected_speakers"`
}

type Encoder struct {
	HWCodec     string        `mapstructure:"hw_codec"`
	TierTimeout time.Duration `mapstructure:"tier_timeout"`
}

type Timeouts struct {
	Fetch      time.Duration `mapstructure:"fetch"`
	Extract    time.Duration `mapstructure:"extract"`
	Transcribe time.Duration `mapstructure:"transcribe"`
	Diarize    time.Duration `mapstructure:"diarize"`
}

type Store struct {
	Database string `mapstructure:"database"` // empty disables the run index
}

type Fetch struct {
	CookieFile      string `mapstructure:"cookie_file"`
	Format          string `mapstructure:"format"`
	BrowserFallback bool   `mapstructure:"browser_fallback"`
}

type Whisper struct {
	Model    string `mapstructure:"model"`
	Device   string `mapstructure:"device"`
	Language string `mapstructure:"language"`
}

type Diarizer struct {
	Script string `mapstructure:"script"`
	Device string `mapstructure:"device"`
}

type Inference struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Prompt  string   `mapstructure:"prompt"`
}

type Server struct {
	StatusAddr string `mapstructure:"status_addr"` // empty disables the status server
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from path (or the default search locations
// when path is empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("pipeline.parallel", 2)
	v.SetDefault("pipeline.scratch_dir", "scratch")
	v.SetDefault("pipeline.chair", "powell")
	v.SetDefault("pipeline.sweep_max_age", 24*time.Hour)

	v.SetDefault("segmenter.target_duration_s", 20.0)
	v.SetDefault("segmenter.min_duration_s", 10.0)
	v.SetDefault("segmenter.max_duration_s", 35.0)
	v.SetDefault("segmenter.max_merge_gap_s", 2.0)
	v.SetDefault("segmenter.snap_tolerance_s", 0.5)
	v.SetDefault("segmenter.expected_speakers", 2)

	v.SetDefault("encoder.hw_codec", "h264_nvenc")
	v.SetDefault("encoder.tier_timeout", 5*time.Minute)

	v.SetDefault("timeouts.fetch", 30*time.Minute)
	v.SetDefault("timeouts.extract", 10*time.Minute)
	v.SetDefault("timeouts.transcribe", 60*time.Minute)
	v.SetDefault("timeouts.diarize", 60*time.Minute)

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "fomc_analysis")

	v.SetDefault("store.database", "clipper.db")
	v.SetDefault("whisper.model", "large-v2")
	v.SetDefault("whisper.device", "cuda")
	v.SetDefault("whisper.language", "en")
	v.SetDefault("fetch.browser_fallback", true)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CLIPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine (defaults + env), an unreadable one is not.
		var nf viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
