package youtube

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	bytes.Buffer
	fs   *memFS
	name string
}

func (f *memFile) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.files[f.name] = f.Bytes()
	f.fs.order = append(f.fs.order, f.name)
	return nil
}

type memFS struct {
	mu       sync.Mutex
	dirs     []string
	files    map[string][]byte
	order    []string
	closed   bool
	mkdirErr error
}

func (m *memFS) Mkdir(path string) error {
	if m.mkdirErr != nil {
		return m.mkdirErr
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *memFS) Create(path string) (io.WriteCloser, error) {
	return &memFile{fs: m, name: path}, nil
}

func (m *memFS) Close() error {
	m.closed = true
	return nil
}

func newTestUploader(fs *memFS, logon *string) *Uploader {
	u := NewUploader(config.YouTubeConfig{RemoteRoot: "drop"}, func(_ context.Context, username string) (RemoteFS, error) {
		*logon = username
		return fs, nil
	})
	u.now = func() time.Time { return time.Unix(1700000000, 0) }
	return u
}

func TestUploader_Upload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "XACPHY1012024-V000001_100.mp4")
	require.NoError(t, os.WriteFile(local, []byte("video"), 0o644))

	fs := &memFS{files: make(map[string][]byte)}
	var logon string
	u := newTestUploader(fs, &logon)

	err := u.Upload(t.Context(), pipeline.HandOff{
		Video:     &models.Video{ExternalID: "XACPHY1012024-V000001", ClientTitle: "Física, parte 1"},
		Course:    &models.Course{YouTubeChannel: "chan", YouTubeLogon: "xac-yt"},
		LocalPath: local,
		FileName:  "XACPHY1012024-V000001_100.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, "xac-yt", logon)
	assert.Equal(t, []string{"drop/1700000000"}, fs.dirs)
	assert.Equal(t, []string{
		"drop/1700000000/XACPHY1012024-V000001_100.mp4",
		"drop/1700000000/XACPHY1012024-V000001_100.csv",
		"drop/1700000000/delivery.complete",
	}, fs.order)
	assert.Equal(t, "video", string(fs.files["drop/1700000000/XACPHY1012024-V000001_100.mp4"]))
	assert.Empty(t, fs.files["drop/1700000000/delivery.complete"])
	assert.True(t, fs.closed)

	records, err := csv.NewReader(bytes.NewReader(fs.files["drop/1700000000/XACPHY1012024-V000001_100.csv"])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	row := make(map[string]string)
	for i, c := range records[0] {
		row[c] = records[1][i]
	}
	assert.Equal(t, "Fisica parte 1", row["title"])
	assert.Equal(t, "chan", row["channel"])
	assert.Equal(t, "XACPHY1012024-V000001", row["custom_id"])
	assert.Equal(t, "unlisted", row["privacy"])
}

func TestUploader_MkdirFailure(t *testing.T) {
	fs := &memFS{files: make(map[string][]byte), mkdirErr: errors.New("permission denied")}
	var logon string
	u := newTestUploader(fs, &logon)

	err := u.Upload(t.Context(), pipeline.HandOff{
		Video:    &models.Video{ExternalID: "X"},
		FileName: "X_100.mp4",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Empty(t, fs.order)
	assert.True(t, fs.closed)
}

func TestFoldTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lecture 1", "Lecture 1"},
		{"Café, naïve", "Cafe naive"},
		{"日本", "--"},
		{"tab\there", "tab-here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FoldTitle(tt.in), tt.in)
	}
}

func TestSidecarCSV_Layout(t *testing.T) {
	data, err := SidecarCSV(Metadata{FileName: "a.mp4"})
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[0], len(csvColumns))
	assert.Len(t, records[1], len(csvColumns))
	assert.Equal(t, "a.mp4", records[1][0])
}
