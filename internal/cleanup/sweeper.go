// Package cleanup reclaims orphaned scratch directories left behind by
// crashed or killed runs. Live jobs remove their own scratch on exit;
// the sweeper only handles what a previous process never got to.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes stale per-job scratch directories.
type Sweeper struct {
	ScratchRoot string
	MaxAge      time.Duration
	Log         zerolog.Logger
}

// EnsureScratchRoot creates the scratch root if missing.
func EnsureScratchRoot(root string) error {
	return os.MkdirAll(root, 0o755)
}

// Sweep deletes every scratch subdirectory older than MaxAge. Run once
// at startup, before any job is admitted.
func (s *Sweeper) Sweep() {
	maxAge := s.MaxAge
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	now := time.Now()

	entries, err := os.ReadDir(s.ScratchRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			s.Log.Warn().Err(err).Msg("scratch sweep failed")
		}
		return
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if age <= maxAge {
			continue
		}
		path := filepath.Join(s.ScratchRoot, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.Log.Warn().Str("path", path).Err(err).Msg("failed to remove stale scratch dir")
			continue
		}
		removed++
		s.Log.Info().Str("path", path).Dur("age", age.Round(time.Minute)).Msg("removed stale scratch dir")
	}

	if removed > 0 {
		s.Log.Info().Int("removed", removed).Msg("scratch sweep complete")
	}
}
