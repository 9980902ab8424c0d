package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ErrNotFound is returned by Get/Download for keys with no stored object.
var ErrNotFound = errors.New("cache: object not found")

// Cache is the artifact store shared by every pipeline stage. Keys are
// hierarchical: <stage>/<video_id>/<artifact_name>. Every stage checks
// the cache before doing work, which is what makes re-running the whole
// pipeline safe.
type Cache interface {
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns the object bytes, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the given bytes under key, overwriting any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Download copies the object to a local file path.
	Download(ctx context.Context, key, localPath string) error

	// Upload stores a local file under key.
	Upload(ctx context.Context, key, localPath string) error

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Locator returns the backend-specific final location of a key
	// (e.g. an s3:// URL). Used to resolve metadata path placeholders
	// after upload.
	Locator(key string) string
}

// Key builds the canonical artifact key for a stage output.
func Key(stage, videoID, name string) string {
	return path.Join(stage, videoID, name)
}

// StagePrefix returns the key prefix holding every artifact a stage
// produced for one video.
func StagePrefix(stage, videoID string) string {
	return path.Join(stage, videoID) + "/"
}

// Config selects and configures a cache backend.
type Config struct {
	Backend string      `mapstructure:"backend"` // "s3", "gdrive" or "local"
	S3      S3Config    `mapstructure:"s3"`
	GDrive  DriveConfig `mapstructure:"gdrive"`
	Local   LocalConfig `mapstructure:"local"`
}

// New creates the configured cache backend.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "s3", "":
		return NewS3Cache(ctx, cfg.S3)
	case "gdrive":
		return NewDriveCache(cfg.GDrive)
	case "local":
		return NewLocalCache(cfg.Local)
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
