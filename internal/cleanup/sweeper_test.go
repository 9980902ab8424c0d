package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesOnlyStaleDirs(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, "stale_video")
	fresh := filepath.Join(root, "fresh_video")
	require.NoError(t, os.Mkdir(stale, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clipper.db"), nil, 0o644))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	s := &Sweeper{ScratchRoot: root, MaxAge: 24 * time.Hour, Log: zerolog.Nop()}
	s.Sweep()

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(root, "clipper.db"), "files are never swept")
}

func TestSweepMissingRootIsQuiet(t *testing.T) {
	s := &Sweeper{ScratchRoot: filepath.Join(t.TempDir(), "nope"), Log: zerolog.Nop()}
	s.Sweep()
}

func TestEnsureScratchRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureScratchRoot(root))
	assert.DirExists(t, root)
}
