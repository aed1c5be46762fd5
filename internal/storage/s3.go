package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jmylchreest/vidpipe/internal/config"
)

const (
	defaultMultipartThreshold = 100 << 20
	defaultMultipartChunk     = 10 << 20
	minMultipartChunk         = 5 << 20

	// DefaultTimeout bounds a single S3 request.
	DefaultTimeout = 20 * time.Second
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Store keeps buckets in S3 or an S3-compatible service.
type S3Store struct {
	client S3API
	cfg    config.StorageConfig
}

// NewS3Store loads AWS credentials from the default chain and builds a store.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3StoreWithClient(client, cfg), nil
}

// NewS3StoreWithClient builds a store over an existing client.
func NewS3StoreWithClient(client S3API, cfg config.StorageConfig) *S3Store {
	return &S3Store{client: client, cfg: cfg}
}

// bounded derives the context of one S3 request.
func (s *S3Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Exists reports whether an object is present.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.head(ctx, bucket, key)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking s3://%s/%s: %w", bucket, key, err)
}

func (s *S3Store) head(ctx context.Context, bucket, key string) (*s3.HeadObjectOutput, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noKey)
}

// Fetch downloads an object to dest in ranged chunks, each one a separate
// bounded request.
func (s *S3Store) Fetch(ctx context.Context, bucket, key, dest string) error {
	head, err := s.head(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}
	size := aws.ToInt64(head.ContentLength)

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	chunk := partSize(int64(s.cfg.MultipartChunkSize))
	for off := int64(0); off < size; off += chunk {
		end := min(off+chunk, size) - 1
		if err := s.fetchRange(ctx, bucket, key, f, off, end); err != nil {
			f.Close()
			os.Remove(dest)
			return err
		}
	}
	return f.Close()
}

func (s *S3Store) fetchRange(ctx context.Context, bucket, key string, w io.Writer, start, end int64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return fmt.Errorf("downloading s3://%s/%s bytes %d-%d: %w", bucket, key, start, end, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading s3://%s/%s bytes %d-%d: %w", bucket, key, start, end, err)
	}
	return nil
}

// Archive stores a raw file privately, in archive-sized parts when large.
func (s *S3Store) Archive(ctx context.Context, path, bucket, key string) error {
	return s.put(ctx, path, bucket, key, false, int64(s.cfg.ArchiveChunkSize))
}

// Upload publishes a file as a public-read download and returns its URL.
func (s *S3Store) Upload(ctx context.Context, path, bucket, key string) (string, error) {
	if err := s.put(ctx, path, bucket, key, true, int64(s.cfg.MultipartChunkSize)); err != nil {
		return "", err
	}
	return s.URL(bucket, key), nil
}

// Delete removes an object.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// URL returns the public URL of an object.
func (s *S3Store) URL(bucket, key string) string {
	return PublicURL(s.cfg, bucket, key)
}

func (s *S3Store) put(ctx context.Context, path, bucket, key string, public bool, chunk int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	threshold := int64(s.cfg.MultipartThreshold)
	if threshold <= 0 {
		threshold = defaultMultipartThreshold
	}
	if info.Size() > threshold {
		return s.putMultipart(ctx, path, bucket, key, public, chunk)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(key)),
	}
	if public {
		in.ACL = types.ObjectCannedACLPublicRead
		in.ContentDisposition = aws.String("attachment")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Store) putMultipart(ctx context.Context, path, bucket, key string, public bool, chunk int64) error {
	chunk = partSize(chunk)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	create := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType(key)),
	}
	if public {
		create.ACL = types.ObjectCannedACLPublicRead
		create.ContentDisposition = aws.String("attachment")
	}
	cctx, cancel := s.bounded(ctx)
	mp, err := s.client.CreateMultipartUpload(cctx, create)
	cancel()
	if err != nil {
		return fmt.Errorf("starting multipart upload of s3://%s/%s: %w", bucket, key, err)
	}

	abort := func(cause error) error {
		actx, cancel := s.bounded(context.WithoutCancel(ctx))
		defer cancel()
		_, _ = s.client.AbortMultipartUpload(actx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: mp.UploadId,
		})
		return cause
	}

	var parts []types.CompletedPart
	buf := make([]byte, chunk)
	for partNumber := int32(1); ; partNumber++ {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			pctx, cancel := s.bounded(ctx)
			out, err := s.client.UploadPart(pctx, &s3.UploadPartInput{
				Bucket:        aws.String(bucket),
				Key:           aws.String(key),
				UploadId:      mp.UploadId,
				PartNumber:    aws.Int32(partNumber),
				Body:          bytes.NewReader(buf[:n]),
				ContentLength: aws.Int64(int64(n)),
			})
			cancel()
			if err != nil {
				return abort(fmt.Errorf("uploading part %d of s3://%s/%s: %w", partNumber, bucket, key, err))
			}
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return abort(fmt.Errorf("reading %s: %w", path, readErr))
		}
	}

	cctx, cancel = s.bounded(ctx)
	defer cancel()
	_, err = s.client.CompleteMultipartUpload(cctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        mp.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(fmt.Errorf("completing multipart upload of s3://%s/%s: %w", bucket, key, err))
	}
	return nil
}

func partSize(chunk int64) int64 {
	if chunk <= 0 {
		return defaultMultipartChunk
	}
	return max(chunk, minMultipartChunk)
}

func contentType(key string) string {
	switch filepath.Ext(key) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".sjson":
		return "application/json"
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
