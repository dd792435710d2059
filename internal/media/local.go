package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// LocalBackend stores images below a directory.
type LocalBackend struct {
	dir string
}

// NewLocalBackend returns a backend rooted at dir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(filepath.Clean("/"+key)))
}

// Checksum hashes the stored file.
func (b *LocalBackend) Checksum(_ context.Context, key string) (uint64, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return xxh3.Hash(data), true, nil
}

// Put writes the file through a temporary file so readers never see a
// partial image.
func (b *LocalBackend) Put(_ context.Context, key string, data []byte, _ string, _ uint64) error {
	dst := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
