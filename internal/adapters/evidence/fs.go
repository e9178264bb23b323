package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/image-mod-relay/internal/core"
	"go.uber.org/zap"
)

// FileStore writes evidence files into a directory
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Save writes the raw image bytes. Existing files are never overwritten; a
// taken name gets a numeric suffix before the extension.
func (s *FileStore) Save(ctx context.Context, record *core.EvidenceRecord) (string, error) {
	name := FileName(record)
	for n := 0; n < maxNameAttempts; n++ {
		path := filepath.Join(s.dir, suffixed(name, n))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create evidence file: %w", err)
		}
		return s.write(f, path, record.Data)
	}
	return "", fmt.Errorf("failed to create evidence file: %d names taken for %s", maxNameAttempts, name)
}

func (s *FileStore) write(f *os.File, path string, data []byte) (string, error) {
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close evidence file: %w", err)
	}
	return path, nil
}

var _ core.EvidenceStore = (*FileStore)(nil)
