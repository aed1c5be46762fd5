// Package storage moves media between the local work directory and the
// intake, deliverable, hotstore and endpoint buckets.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmylchreest/vidpipe/internal/config"
)

// Store is a bucket backend.
type Store interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Fetch(ctx context.Context, bucket, key, dest string) error
	Archive(ctx context.Context, path, bucket, key string) error
	Upload(ctx context.Context, path, bucket, key string) (string, error)
	Delete(ctx context.Context, bucket, key string) error
	URL(bucket, key string) string
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// PublicURL returns the download URL of an object: the CloudFront prefix if
// configured, then the public base URL, then the S3 path-style address.
func PublicURL(cfg config.StorageConfig, bucket, key string) string {
	escaped := escapeKey(key)
	switch {
	case cfg.CloudfrontPrefix != "":
		return strings.TrimRight(cfg.CloudfrontPrefix, "/") + "/" + escaped
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/" + bucket + "/" + escaped
	default:
		return "https://s3.amazonaws.com/" + bucket + "/" + escaped
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
