package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSink writes CSV exports under a directory on the local filesystem.
// It is the default when no bucket is configured.
type LocalSink struct {
	dir string
}

func NewLocalSink(dir string) *LocalSink {
	if dir == "" {
		dir = "exports"
	}
	return &LocalSink{dir: dir}
}

func (l *LocalSink) Upload(_ context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty export")
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
