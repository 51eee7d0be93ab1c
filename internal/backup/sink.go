// Package backup copies every project to a sink on a schedule.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores one backup object. name is a slash separated relative path.
type Sink interface {
	Put(ctx context.Context, name string, body []byte) error
}

// DirSink writes backups below a local directory.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) (*DirSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("backup dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) Put(_ context.Context, name string, body []byte) error {
	p := filepath.Join(s.dir, filepath.FromSlash(filepath.Clean("/" + name)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return fmt.Errorf("write backup %s: %w", name, err)
	}
	return nil
}
