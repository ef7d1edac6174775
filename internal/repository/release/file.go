package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// ManifestFilename is the release manifest written next to the archives.
const ManifestFilename = "quaso-pack-release.yaml"

// Repository defines persistence operations for the release manifest.
type Repository interface {
	Load(ctx context.Context) (*pack.Manifest, error)
	Save(ctx context.Context, manifest *pack.Manifest) error
	Put(ctx context.Context, release *pack.Release) error
	Remove(ctx context.Context, template, label string) error
}

// FileRepository persists the release manifest to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the manifest.
	path string
	// mu serializes read-modify-write cycles on the manifest.
	mu sync.Mutex
}

// ErrNotFound is returned when the manifest does not exist yet.
var ErrNotFound = errors.New("release manifest not found")

// NewFileRepository creates a repository that reads and writes the manifest at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the manifest location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the manifest from disk.
func (r *FileRepository) Load(_ context.Context) (*pack.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

// Save writes the manifest to disk.
func (r *FileRepository) Save(_ context.Context, manifest *pack.Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(manifest)
}

// Put records a release, replacing any entry for the same (template, label).
func (r *FileRepository) Put(_ context.Context, release *pack.Release) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, err := r.loadOrEmpty()
	if err != nil {
		return err
	}

	manifest.Put(release)

	return r.save(manifest)
}

// Remove drops the entry for (template, label). A missing manifest or entry is not an error.
func (r *FileRepository) Remove(_ context.Context, template, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, err := r.load()
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	if !manifest.Remove(template, label) {
		return nil
	}

	return r.save(manifest)
}

func (r *FileRepository) load() (*pack.Manifest, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read release manifest: %w", err)
	}

	manifest := &pack.Manifest{}
	if err = yaml.Unmarshal(contents, manifest); err != nil {
		return nil, fmt.Errorf("decode release manifest: %w", err)
	}

	return manifest, nil
}

func (r *FileRepository) loadOrEmpty() (*pack.Manifest, error) {
	manifest, err := r.load()
	if errors.Is(err, ErrNotFound) {
		return &pack.Manifest{}, nil
	}

	return manifest, err
}

func (r *FileRepository) save(manifest *pack.Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode release manifest: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write release manifest: %w", err)
	}

	return nil
}
