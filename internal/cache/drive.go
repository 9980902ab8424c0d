package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveConfig configures the Google Drive cache backend.
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	FolderName      string `mapstructure:"folder_name"`
}

// DriveCache implements Cache on Google Drive. The hierarchical key
// layout is mirrored as nested folders under a root folder. Slower than
// S3 and only meant for small archives, but it lets a run share the
// same artifact contract without an AWS account.
type DriveCache struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveCache creates a Drive-backed artifact cache.
func NewDriveCache(cfg DriveConfig) (*DriveCache, error) {
	ctx := context.Background()

	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("cache: read credentials file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("cache: parse credentials: %w", err)
	}

	client, err := driveHTTPClient(oauthCfg, cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("cache: create Drive service: %w", err)
	}

	dc := &DriveCache{service: srv, folderName: cfg.FolderName}
	if dc.folderName == "" {
		dc.folderName = "meeting-clipper"
	}
	if err := dc.ensureRoot(); err != nil {
		return nil, err
	}
	return dc, nil
}

// driveHTTPClient loads a cached oauth token; an interactive exchange
// is required once if no token file exists yet.
func driveHTTPClient(config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		tok, err = tokenFromWeb(config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(context.Background(), tok), nil
}

func tokenFromWeb(config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser:\n%v\n", authURL)
	fmt.Print("Enter authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("cache: read authorization code: %w", err)
	}

	tok, err := config.Exchange(context.TODO(), authCode)
	if err != nil {
		return nil, fmt.Errorf("cache: exchange oauth token: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("cache: store oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// ensureRoot finds or creates the archive root folder.
func (c *DriveCache) ensureRoot() error {
	id, err := c.findFolder(c.folderName, "")
	if err != nil {
		return err
	}
	if id == "" {
		id, err = c.createFolder(c.folderName, "")
		if err != nil {
			return err
		}
	}
	c.folderID = id
	return nil
}

func (c *DriveCache) findFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false", name)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}
	r, err := c.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return "", fmt.Errorf("cache: search folder %s: %w", name, err)
	}
	if len(r.Files) == 0 {
		return "", nil
	}
	return r.Files[0].Id, nil
}

func (c *DriveCache) createFolder(name, parentID string) (string, error) {
	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	file, err := c.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("cache: create folder %s: %w", name, err)
	}
	return file.Id, nil
}

// resolveDir walks the key's directory components, creating folders
// along the way when create is true. Returns "" if a component is
// missing and create is false.
func (c *DriveCache) resolveDir(key string, create bool) (string, error) {
	parentID := c.folderID
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return parentID, nil
	}
	for _, part := range strings.Split(dir, "/") {
		id, err := c.findFolder(part, parentID)
		if err != nil {
			return "", err
		}
		if id == "" {
			if !create {
				return "", nil
			}
			id, err = c.createFolder(part, parentID)
			if err != nil {
				return "", err
			}
		}
		parentID = id
	}
	return parentID, nil
}

// findFile returns the Drive file id for key, or "".
func (c *DriveCache) findFile(key string) (string, error) {
	dirID, err := c.resolveDir(key, false)
	if err != nil || dirID == "" {
		return "", err
	}
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", path.Base(key), dirID)
	r, err := c.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", fmt.Errorf("cache: search %s: %w", key, err)
	}
	if len(r.Files) == 0 {
		return "", nil
	}
	return r.Files[0].Id, nil
}

// Exists reports whether an object is stored under key.
func (c *DriveCache) Exists(_ context.Context, key string) (bool, error) {
	id, err := c.findFile(key)
	return id != "", err
}

// Get returns the object bytes, or ErrNotFound.
func (c *DriveCache) Get(ctx context.Context, key string) ([]byte, error) {
	id, err := c.findFile(key)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}
	resp, err := c.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("cache: download %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Put stores bytes under key.
func (c *DriveCache) Put(_ context.Context, key string, data []byte) error {
	return c.upload(key, bytes.NewReader(data))
}

// Download copies the object to a local file.
func (c *DriveCache) Download(ctx context.Context, key, localPath string) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

// Upload stores a local file under key.
func (c *DriveCache) Upload(_ context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.upload(key, f)
}

func (c *DriveCache) upload(key string, r io.Reader) error {
	dirID, err := c.resolveDir(key, true)
	if err != nil {
		return err
	}

	// Overwrite semantics: drop any previous file with the same name.
	if id, err := c.findFile(key); err == nil && id != "" {
		_ = c.service.Files.Delete(id).Do()
	}

	file := &drive.File{
		Name:    path.Base(key),
		Parents: []string{dirID},
	}
	if _, err := c.service.Files.Create(file).Media(r).Do(); err != nil {
		return fmt.Errorf("cache: upload %s: %w", key, err)
	}
	return nil
}

// List returns every key under prefix by walking the folder tree.
func (c *DriveCache) List(_ context.Context, prefix string) ([]string, error) {
	clean := strings.TrimSuffix(prefix, "/")
	dirID := c.folderID
	if clean != "" {
		var err error
		// A prefix is always a folder path in our key layout.
		dirID, err = c.resolveDir(clean+"/x", false)
		if err != nil {
			return nil, err
		}
		if dirID == "" {
			return nil, nil
		}
	}
	return c.walk(dirID, clean)
}

func (c *DriveCache) walk(folderID, base string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	r, err := c.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name, mimeType)").Do()
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", base, err)
	}

	var keys []string
	for _, f := range r.Files {
		child := path.Join(base, f.Name)
		if f.MimeType == "application/vnd.google-apps.folder" {
			sub, err := c.walk(f.Id, child)
			if err != nil {
				return nil, err
			}
			keys = append(keys, sub...)
			continue
		}
		keys = append(keys, child)
	}
	return keys, nil
}

// Locator returns a drive:// pseudo-URL rooted at the archive folder.
func (c *DriveCache) Locator(key string) string {
	return fmt.Sprintf("drive://%s/%s", c.folderName, key)
}
