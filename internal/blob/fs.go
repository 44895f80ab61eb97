package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// FSStore keeps artifacts under a root directory. URIs are file:// paths.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) Upload(_ context.Context, localPath, key string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	dst, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return "", fmt.Errorf("copy blob: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	return fileScheme + filepath.ToSlash(dest), nil
}

func (s *FSStore) Download(_ context.Context, uri string) ([]byte, error) {
	path, err := s.localPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, uri string) error {
	path, err := s.localPath(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *FSStore) localPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, fileScheme) {
		return "", fmt.Errorf("unsupported blob uri %q", uri)
	}
	path := filepath.FromSlash(strings.TrimPrefix(uri, fileScheme))
	if !strings.HasPrefix(path, s.root) {
		return "", fmt.Errorf("blob uri %q outside store root", uri)
	}
	return path, nil
}
