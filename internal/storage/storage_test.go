package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.mp4")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("v"), size), 0o644))
	return path
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{"s3 default", config.StorageConfig{}, "https://s3.amazonaws.com/endpoint/A-V000001/A%20V.m3u8"},
		{"public base", config.StorageConfig{PublicBaseURL: "https://media.example.com/"}, "https://media.example.com/endpoint/A-V000001/A%20V.m3u8"},
		{"cloudfront wins", config.StorageConfig{PublicBaseURL: "https://media.example.com", CloudfrontPrefix: "https://d1.cloudfront.net"}, "https://d1.cloudfront.net/A-V000001/A%20V.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PublicURL(tt.cfg, "endpoint", "A-V000001/A V.m3u8"))
		})
	}
}

func TestNew_Backends(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Backend: "local", BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = NewLocalStore(config.StorageConfig{})
	assert.Error(t, err)
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(config.StorageConfig{BaseDir: t.TempDir(), PublicBaseURL: "https://media.example.com"})
	require.NoError(t, err)

	src := writeFile(t, 64)
	url, err := store.Upload(ctx, src, "endpoint", "X-V000001_DTH.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/endpoint/X-V000001_DTH.mp4", url)

	ok, err := store.Exists(ctx, "endpoint", "X-V000001_DTH.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	dest := filepath.Join(t.TempDir(), "work", "fetched.mp4")
	require.NoError(t, store.Fetch(ctx, "endpoint", "X-V000001_DTH.mp4", dest))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.EqualValues(t, 64, info.Size())

	require.NoError(t, store.Delete(ctx, "endpoint", "X-V000001_DTH.mp4"))
	ok, err = store.Exists(ctx, "endpoint", "X-V000001_DTH.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, store.Fetch(ctx, "endpoint", "missing.mp4", dest))
	_, err = store.Exists(ctx, "../outside", "x")
	assert.Error(t, err)
}

func TestLocalStore_FileURL(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStore(config.StorageConfig{BaseDir: base})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(store.URL("endpoint", "a.mp4"), "file://"))
	assert.True(t, strings.HasSuffix(store.URL("endpoint", "a.mp4"), "/endpoint/a.mp4"))
}

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      []*s3.PutObjectInput
	creates   []*s3.CreateMultipartUploadInput
	parts     map[int32][]byte
	completed []types.CompletedPart
	aborted   bool
	failPart  int32
	ranges    []string
	// hang makes every read request wait for its context to end.
	hang bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), parts: make(map[int32][]byte)}
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if r := aws.ToString(in.Range); r != "" {
		f.ranges = append(f.ranges, r)
		var start, end int
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		data = data[start : end+1]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if *in.PartNumber == f.failPart {
		return nil, io.ErrUnexpectedEOF
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts[*in.PartNumber] = data
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = in.MultipartUpload.Parts
	var all []byte
	for i := int32(1); i <= int32(len(f.parts)); i++ {
		all = append(all, f.parts[i]...)
	}
	f.objects[*in.Bucket+"/"+*in.Key] = all
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, _ *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Store_UploadSinglePart(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, config.StorageConfig{MultipartThreshold: 1 << 20})
	ctx := context.Background()

	url, err := store.Upload(ctx, writeFile(t, 128), "endpoint", "X-V000001_DTH.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.amazonaws.com/endpoint/X-V000001_DTH.mp4", url)

	require.Len(t, fake.puts, 1)
	assert.Equal(t, types.ObjectCannedACLPublicRead, fake.puts[0].ACL)
	assert.Equal(t, "attachment", aws.ToString(fake.puts[0].ContentDisposition))
	assert.Equal(t, "video/mp4", aws.ToString(fake.puts[0].ContentType))

	ok, err := store.Exists(ctx, "endpoint", "X-V000001_DTH.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Exists(ctx, "endpoint", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Store_UploadTranscript(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, config.StorageConfig{MultipartThreshold: 1 << 20})

	_, err := store.Upload(context.Background(), writeFile(t, 32), "transcripts", "video-transcripts/0f1e.sjson")
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, types.ObjectCannedACLPublicRead, fake.puts[0].ACL)
	assert.Equal(t, "application/json", aws.ToString(fake.puts[0].ContentType))
}

func TestS3Store_ArchiveIsPrivate(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, config.StorageConfig{MultipartThreshold: 1 << 20})

	require.NoError(t, store.Archive(context.Background(), writeFile(t, 16), "hotstore", "X-V000001.mov"))
	require.Len(t, fake.puts, 1)
	assert.Empty(t, fake.puts[0].ACL)
	assert.Nil(t, fake.puts[0].ContentDisposition)
}

func TestS3Store_Multipart(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, config.StorageConfig{
		MultipartThreshold: 6 << 20,
		MultipartChunkSize: 5 << 20,
	})
	ctx := context.Background()

	size := 12 << 20
	_, err := store.Upload(ctx, writeFile(t, size), "endpoint", "big.mp4")
	require.NoError(t, err)

	require.Len(t, fake.creates, 1)
	assert.Equal(t, types.ObjectCannedACLPublicRead, fake.creates[0].ACL)
	assert.Len(t, fake.completed, 3)
	assert.Len(t, fake.objects["endpoint/big.mp4"], size)

	dest := filepath.Join(t.TempDir(), "big.mp4")
	require.NoError(t, store.Fetch(ctx, "endpoint", "big.mp4", dest))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.EqualValues(t, size, info.Size())
	assert.Equal(t, []string{"bytes=0-5242879", "bytes=5242880-10485759", "bytes=10485760-12582911"}, fake.ranges)
}

func TestS3Store_MultipartAbortsOnFailure(t *testing.T) {
	fake := newFakeS3()
	fake.failPart = 2
	store := NewS3StoreWithClient(fake, config.StorageConfig{MultipartThreshold: 1 << 20})

	err := store.Archive(context.Background(), writeFile(t, 11<<20), "hotstore", "raw.mov")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part 2")
	assert.True(t, fake.aborted)
	assert.Nil(t, fake.completed)
}

func TestS3Store_DeleteAndFetchMissing(t *testing.T) {
	fake := newFakeS3()
	fake.objects["deliverable/a.mp4"] = []byte("x")
	store := NewS3StoreWithClient(fake, config.StorageConfig{})
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "deliverable", "a.mp4"))
	assert.NotContains(t, fake.objects, "deliverable/a.mp4")
	assert.Error(t, store.Fetch(ctx, "deliverable", "a.mp4", filepath.Join(t.TempDir(), "a.mp4")))
}

func TestS3Store_FetchSmallObject(t *testing.T) {
	fake := newFakeS3()
	fake.objects["intake/a.mov"] = []byte("source")
	store := NewS3StoreWithClient(fake, config.StorageConfig{})

	dest := filepath.Join(t.TempDir(), "a.mov")
	require.NoError(t, store.Fetch(context.Background(), "intake", "a.mov", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "source", string(data))
	assert.Equal(t, []string{"bytes=0-5"}, fake.ranges)
}

func TestS3Store_RequestsAreBounded(t *testing.T) {
	fake := newFakeS3()
	fake.hang = true
	store := NewS3StoreWithClient(fake, config.StorageConfig{Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	_, err := store.Exists(ctx, "deliverable", "a.mp4")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = store.Fetch(ctx, "deliverable", "a.mp4", filepath.Join(t.TempDir(), "a.mp4"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
