package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.Parallel)
	assert.Equal(t, "powell", cfg.Pipeline.Chair)
	assert.Equal(t, 20.0, cfg.Segmenter.TargetDurationS)
	assert.Equal(t, 10.0, cfg.Segmenter.MinDurationS)
	assert.Equal(t, 35.0, cfg.Segmenter.MaxDurationS)
	assert.Equal(t, "h264_nvenc", cfg.Encoder.HWCodec)
	assert.Equal(t, 30*time.Minute, cfg.Timeouts.Fetch)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "fomc_analysis", cfg.Storage.S3.Prefix)
	assert.True(t, cfg.Fetch.BrowserFallback)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  parallel: 5
  chair: yellen
segmenter:
  target_duration_s: 25
storage:
  backend: local
  local:
    root: /tmp/cache
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.Parallel)
	assert.Equal(t, "yellen", cfg.Pipeline.Chair)
	assert.Equal(t, 25.0, cfg.Segmenter.TargetDurationS)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/cache", cfg.Storage.Local.Root)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10.0, cfg.Segmenter.MinDurationS)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CLIPPER_PIPELINE_PARALLEL", "7")
	t.Setenv("CLIPPER_STORAGE_BACKEND", "local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.Parallel)
	assert.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
