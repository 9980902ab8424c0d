// Package targets loads the list of videos to process. Two formats are
// accepted: a plain text file with one target per line (comments and
// blank lines ignored) and a YAML manifest carrying per-video chair and
// date overrides.
package targets

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// Entry is one target from a YAML manifest.
type Entry struct {
	URL     string `yaml:"url"`
	VideoID string `yaml:"video_id"`
	Chair   string `yaml:"chair"`
	Date    string `yaml:"date"` // YYYYMMDD, optional pre-resolved date
}

type manifest struct {
	Chair   string  `yaml:"chair"` // default chair for all targets
	Targets []Entry `yaml:"targets"`
}

// Load reads the targets file and builds the job list. defaultChair is
// used when neither the manifest nor the entry names one.
func Load(path, defaultChair string) ([]*types.VideoJob, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return loadManifest(path, defaultChair)
	}
	return loadLines(path, defaultChair)
}

func loadLines(path, chair string) ([]*types.VideoJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("targets: open %s: %w", path, err)
	}
	defer f.Close()

	var jobs []*types.VideoJob
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := VideoID(line)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &types.VideoJob{
			VideoID:   id,
			TargetRef: line,
			Chair:     chair,
			Status:    types.StatusQueued,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("targets: read %s: %w", path, err)
	}
	return jobs, nil
}

func loadManifest(path, defaultChair string) ([]*types.VideoJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("targets: read %s: %w", path, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("targets: parse %s: %w", path, err)
	}

	var jobs []*types.VideoJob
	for i, e := range m.Targets {
		ref := e.URL
		id := e.VideoID
		if ref == "" && id != "" {
			ref = "https://www.youtube.com/watch?v=" + id
		}
		if ref == "" {
			return nil, fmt.Errorf("targets: entry %d has neither url nor video_id", i)
		}
		if id == "" {
			id, err = VideoID(ref)
			if err != nil {
				return nil, err
			}
		}
		chair := e.Chair
		if chair == "" {
			chair = m.Chair
		}
		if chair == "" {
			chair = defaultChair
		}
		jobs = append(jobs, &types.VideoJob{
			VideoID:   id,
			TargetRef: ref,
			Chair:     chair,
			Date:      e.Date,
			Status:    types.StatusQueued,
		})
	}
	return jobs, nil
}

// VideoID extracts the 11-character video id from a watch URL, short
// URL, or a bare id.
func VideoID(ref string) (string, error) {
	if !strings.Contains(ref, "/") && !strings.Contains(ref, "?") {
		if len(ref) == 11 {
			return ref, nil
		}
		return "", fmt.Errorf("targets: %q does not look like a video id", ref)
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("targets: parse %q: %w", ref, err)
	}
	if v := u.Query().Get("v"); v != "" {
		return v, nil
	}
	// youtu.be/<id> and /live/<id> style paths.
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 {
		last := parts[len(parts)-1]
		if len(last) == 11 {
			return last, nil
		}
	}
	return "", fmt.Errorf("targets: cannot extract video id from %q", ref)
}
