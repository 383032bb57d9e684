package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ernie/trinity-link/internal/domain"
)

// linkFile is the on-disk shape of a FileStore
type linkFile struct {
	Links []domain.Link `json:"links"`
}

// FileStore persists links to a JSON file. Writes go to a temporary file
// that is renamed over the target, so readers never see a partial file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a JSON link store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// ReadLinks loads links from the file. A missing file is an empty link set.
func (f *FileStore) ReadLinks(ctx context.Context) ([]domain.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading link file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var lf linkFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing link file: %w", err)
	}
	return lf.Links, nil
}

// WriteLinks replaces the file contents with links
func (f *FileStore) WriteLinks(ctx context.Context, links []domain.Link) error {
	sorted := append([]domain.Link(nil), links...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Game < sorted[j].Game })

	data, err := json.MarshalIndent(linkFile{Links: sorted}, "", "  ")
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
