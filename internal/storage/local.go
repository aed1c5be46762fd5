package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/vidpipe/internal/config"
)

// LocalStore keeps each bucket as a directory under BaseDir. It backs
// single-host deployments and tests.
type LocalStore struct {
	cfg config.StorageConfig

	mu      sync.Mutex
	buckets map[string]*Sandbox
}

// NewLocalStore creates a store rooted at cfg.BaseDir.
func NewLocalStore(cfg config.StorageConfig) (*LocalStore, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage requires base_dir")
	}
	root, err := NewSandbox(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = root.BaseDir()
	return &LocalStore{cfg: cfg, buckets: make(map[string]*Sandbox)}, nil
}

func (s *LocalStore) bucket(name string) (*Sandbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sb, ok := s.buckets[name]; ok {
		return sb, nil
	}
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid bucket name %q", name)
	}
	sb, err := NewSandbox(filepath.Join(s.cfg.BaseDir, name))
	if err != nil {
		return nil, err
	}
	s.buckets[name] = sb
	return sb, nil
}

// Exists reports whether an object is present.
func (s *LocalStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	sb, err := s.bucket(bucket)
	if err != nil {
		return false, err
	}
	return sb.Exists(key)
}

// Fetch copies an object to dest.
func (s *LocalStore) Fetch(_ context.Context, bucket, key, dest string) error {
	sb, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	if err := sb.CopyOut(key, dest); err != nil {
		return fmt.Errorf("fetching %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Archive copies a raw file into a bucket.
func (s *LocalStore) Archive(_ context.Context, path, bucket, key string) error {
	sb, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	if err := sb.CopyIn(path, key); err != nil {
		return fmt.Errorf("archiving %s to %s/%s: %w", path, bucket, key, err)
	}
	return nil
}

// Upload copies a file into a bucket and returns its URL.
func (s *LocalStore) Upload(ctx context.Context, path, bucket, key string) (string, error) {
	if err := s.Archive(ctx, path, bucket, key); err != nil {
		return "", err
	}
	return s.URL(bucket, key), nil
}

// Delete removes an object.
func (s *LocalStore) Delete(_ context.Context, bucket, key string) error {
	sb, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	return sb.Remove(key)
}

// URL returns a URL under the public base URL, or a file URL when none is
// configured.
func (s *LocalStore) URL(bucket, key string) string {
	if s.cfg.PublicBaseURL != "" || s.cfg.CloudfrontPrefix != "" {
		return PublicURL(s.cfg, bucket, key)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.cfg.BaseDir, bucket, key))}
	return u.String()
}
