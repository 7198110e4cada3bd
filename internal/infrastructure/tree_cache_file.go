package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileTreeCache keeps the tree document and its timestamp in a cache directory
type FileTreeCache struct {
	fs            afero.Fs
	timestampPath string
	treePath      string
}

// NewFileTreeCache creates the cache directory and returns a cache using the
// base names of the remote timestamp and tree files
func NewFileTreeCache(fs afero.Fs, dir, timestampFile, treeFile string) (*FileTreeCache, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileTreeCache{
		fs:            fs,
		timestampPath: filepath.Join(dir, filepath.Base(timestampFile)),
		treePath:      filepath.Join(dir, filepath.Base(treeFile)),
	}, nil
}

// Load returns the cached timestamp and tree
func (c *FileTreeCache) Load(ctx context.Context) (int64, []byte, bool, error) {
	tsData, err := afero.ReadFile(c.fs, c.timestampPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("failed to read cached timestamp: %w", err)
	}

	// A corrupt timestamp is treated as a cache miss
	ts, err := strconv.ParseInt(strings.TrimSpace(string(tsData)), 10, 64)
	if err != nil {
		return 0, nil, false, nil
	}

	tree, err := afero.ReadFile(c.fs, c.treePath)
	if errors.Is(err, os.ErrNotExist) {
		return ts, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("failed to read cached tree: %w", err)
	}

	return ts, tree, true, nil
}

// Store replaces the cached timestamp and tree
func (c *FileTreeCache) Store(ctx context.Context, timestamp int64, tree []byte) error {
	if err := afero.WriteFile(c.fs, c.treePath, tree, 0644); err != nil {
		return fmt.Errorf("failed to write cached tree: %w", err)
	}
	if err := afero.WriteFile(c.fs, c.timestampPath, []byte(strconv.FormatInt(timestamp, 10)), 0644); err != nil {
		return fmt.Errorf("failed to write cached timestamp: %w", err)
	}
	return nil
}
