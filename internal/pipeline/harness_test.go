package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/repository"
	"github.com/jmylchreest/vidpipe/internal/retry"
	"github.com/jmylchreest/vidpipe/internal/testutil"
	"github.com/jmylchreest/vidpipe/internal/val"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errBrokerDown = errors.New("broker unavailable")

type fakeValidator struct {
	mu      sync.Mutex
	invalid map[string]bool
	calls   []string
}

func (f *fakeValidator) Validate(_ context.Context, path string, _ bool, _ float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filepath.Base(path))
	return !f.invalid[filepath.Base(path)], nil
}

type fakeProber struct {
	meta Metadata
}

func (f *fakeProber) Probe(_ context.Context, path string) (Metadata, error) {
	m := f.meta
	if info, err := os.Stat(path); err == nil && m.Filesize == 0 {
		m.Filesize = info.Size()
	}
	return m, nil
}

// fakeStorage keeps objects in memory, keyed by bucket/key.
type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	archived []string
	deleted  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) put(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
}

func (f *fakeStorage) has(bucket, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok
}

func (f *fakeStorage) Exists(_ context.Context, bucket, key string) (bool, error) {
	return f.has(bucket, key), nil
}

func (f *fakeStorage) Fetch(_ context.Context, bucket, key, dest string) error {
	f.mu.Lock()
	data, ok := f.objects[bucket+"/"+key]
	f.mu.Unlock()
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(dest, data, 0o644)
}

func (f *fakeStorage) Archive(_ context.Context, path, bucket, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.put(bucket, key, data)
	f.mu.Lock()
	f.archived = append(f.archived, bucket+"/"+key)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Upload(ctx context.Context, path, bucket, key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	f.put(bucket, key, data)
	return f.URL(bucket, key), nil
}

func (f *fakeStorage) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

func (f *fakeStorage) URL(bucket, key string) string {
	return "https://cdn.example.com/" + bucket + "/" + key
}

type fakeBroker struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []TaskMessage
	queues   []string
}

func (f *fakeBroker) Enqueue(_ context.Context, msg TaskMessage, queue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures < 0 || f.calls <= f.failures {
		return errBrokerDown
	}
	f.sent = append(f.sent, msg)
	f.queues = append(f.queues, queue)
	return nil
}

func (f *fakeBroker) profiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Profile)
	}
	return out
}

type sorCall struct {
	Op     string
	ValID  string
	Status string
	Record *val.Video
}

type fakeSOR struct {
	mu          sync.Mutex
	records     map[string]*val.Video
	calls       []sorCall
	transcripts []val.Transcript
}

func newFakeSOR() *fakeSOR {
	return &fakeSOR{records: make(map[string]*val.Video)}
}

func (f *fakeSOR) Get(_ context.Context, valID string) (*val.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sorCall{Op: "get", ValID: valID})
	rec, ok := f.records[valID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeSOR) Create(_ context.Context, v *val.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sorCall{Op: "create", ValID: v.EdxVideoID, Status: v.Status, Record: v})
	cp := *v
	f.records[v.EdxVideoID] = &cp
	return nil
}

func (f *fakeSOR) Update(_ context.Context, valID string, v *val.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sorCall{Op: "update", ValID: valID, Status: v.Status, Record: v})
	cp := *v
	f.records[valID] = &cp
	return nil
}

func (f *fakeSOR) PatchTranscriptStatus(_ context.Context, valID string, status models.ExternalStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sorCall{Op: "patch", ValID: valID, Status: string(status)})
	return nil
}

func (f *fakeSOR) CreateTranscript(_ context.Context, tr *val.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, *tr)
	return nil
}

// statuses returns the statuses pushed by create, update and patch calls.
func (f *fakeSOR) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Op != "get" {
			out = append(out, c.Status)
		}
	}
	return out
}

type fakeLiveness struct {
	err     error
	checked []string
}

func (f *fakeLiveness) Check(_ context.Context, url string) error {
	f.checked = append(f.checked, url)
	return f.err
}

type fakePlatform struct {
	handoffs []HandOff
}

func (f *fakePlatform) Upload(_ context.Context, h HandOff) error {
	f.handoffs = append(f.handoffs, h)
	return nil
}

const sampleSRT = "1\n00:00:00,000 --> 00:00:01,500\nHello.\n\n2\n00:00:01,500 --> 00:00:03,000\nSecond\nline.\n"

type fakeVendor struct {
	provider  models.TranscriptProvider
	processes []SubmittedProcess
	requests  []SubmitRequest
	err       error
	// captions overrides the SRT served per process id.
	captions map[string]string
	fetchErr error
	fetched  []string
}

func (f *fakeVendor) Provider() models.TranscriptProvider { return f.provider }

func (f *fakeVendor) Submit(_ context.Context, req SubmitRequest) ([]SubmittedProcess, error) {
	f.requests = append(f.requests, req)
	return f.processes, f.err
}

func (f *fakeVendor) FetchTranscript(_ context.Context, _ *models.TranscriptCredentials, processID, langCode string) ([]byte, error) {
	f.fetched = append(f.fetched, processID+"/"+langCode)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if srt, ok := f.captions[processID]; ok {
		return []byte(srt), nil
	}
	return []byte(sampleSRT), nil
}

// fakeTranslator is a vendor that also translates.
type fakeTranslator struct {
	fakeVendor
	orders       [][]string
	orderErr     error
	unavailable  map[string]bool
	translations []Translation
	listErr      error
}

func (f *fakeTranslator) OrderTranslations(_ context.Context, _ *models.TranscriptCredentials, fileID, source string, targets []string) ([]SubmittedProcess, error) {
	f.orders = append(f.orders, append([]string{fileID, source}, targets...))
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	out := make([]SubmittedProcess, 0, len(targets))
	for _, lang := range targets {
		if f.unavailable[lang] {
			out = append(out, SubmittedProcess{ProcessID: fileID, LangCode: lang, Failed: true})
			continue
		}
		out = append(out, SubmittedProcess{ProcessID: fileID, LangCode: lang, TranslationID: "tr-" + lang})
	}
	return out, nil
}

func (f *fakeTranslator) Translations(context.Context, *models.TranscriptCredentials, string) ([]Translation, error) {
	return f.translations, f.listErr
}

func (f *fakeTranslator) FetchTranslation(ctx context.Context, creds *models.TranscriptCredentials, fileID, translationID string) ([]byte, error) {
	return f.FetchTranscript(ctx, creds, translationID, "")
}

type harness struct {
	t   *testing.T
	db  *gorm.DB
	cfg *config.Config
	gen *testutil.SampleDataGenerator
	now time.Time

	courses     repository.CourseRepository
	videos      repository.VideoRepository
	profiles    repository.EncodeProfileRepository
	artifacts   repository.ArtifactRepository
	transcripts repository.TranscriptRepository

	validator  *fakeValidator
	prober     *fakeProber
	storage    *fakeStorage
	broker     *fakeBroker
	sor        *fakeSOR
	liveness   *fakeLiveness
	platform   *fakePlatform
	vendor     *fakeVendor
	translator *fakeTranslator
	sleeps     []time.Duration

	engine *Engine
}

func testConfig(workDir string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Backend:           "local",
			WorkDir:           workDir,
			IntakeBucket:      "intake",
			DeliverableBucket: "deliverable",
			HotstoreBucket:    "hotstore",
			EndpointBucket:    "endpoint",
			TranscriptBucket:  "transcripts",
			TranscriptPrefix:  "video-transcripts/",
		},
		Queue: config.QueueConfig{
			DefaultQueue:       "encode",
			LargefileQueue:     "encode_largefile",
			LargefileThreshold: config.ByteSize(1 << 30),
			PublishAttempts:    3,
			PublishBackoffStep: config.Duration(time.Second),
			PublishBackoffMax:  config.Duration(5 * time.Second),
			TaskName:           "encode_video",
		},
		Heal: config.HealConfig{
			WindowStart:  0,
			WindowEnd:    config.Duration(144 * time.Hour),
			RetryBarrier: config.Duration(24 * time.Hour),
		},
		Profiles: config.ProfilesConfig{
			Families:              config.DefaultFamilies(),
			ExternalProfiles:      config.DefaultExternalProfiles(),
			ReviewProfile:         "review",
			MobileOverrideProfile: "override",
			HLSProfile:            "hls",
			DesktopProfile:        "desktop_mp4",
			YouTubeProfile:        "youtube",
		},
		Transcription: config.TranscriptionConfig{
			CallbackBaseURL: "https://pipeline.example.com",
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	h := &harness{
		t:           t,
		db:          db,
		cfg:         testConfig(t.TempDir()),
		gen:         testutil.NewSampleDataGeneratorWithSeed(42),
		now:         time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		courses:     repository.NewCourseRepository(db),
		videos:      repository.NewVideoRepository(db),
		profiles:    repository.NewEncodeProfileRepository(db),
		artifacts:   repository.NewArtifactRepository(db),
		transcripts: repository.NewTranscriptRepository(db),
		validator:   &fakeValidator{invalid: map[string]bool{}},
		prober:      &fakeProber{meta: Metadata{Duration: 600, Bitrate: "2000k", Resolution: "1280x720", Checksum: "abc"}},
		storage:     newFakeStorage(),
		broker:      &fakeBroker{},
		sor:         newFakeSOR(),
		liveness:    &fakeLiveness{},
		platform:    &fakePlatform{},
		vendor:      &fakeVendor{provider: models.ProviderCielo24},
		translator:  &fakeTranslator{fakeVendor: fakeVendor{provider: models.ProviderThreePlay}},
	}
	h.rebuild()
	return h
}

// rebuild wires a fresh engine over the harness fakes and configuration.
func (h *harness) rebuild() {
	h.engine = NewEngine(h.cfg, Deps{
		Courses:        h.courses,
		Videos:         h.videos,
		Profiles:       h.profiles,
		Artifacts:      h.artifacts,
		Transcripts:    h.transcripts,
		Validator:      h.validator,
		Prober:         h.prober,
		Storage:        h.storage,
		Broker:         h.broker,
		Liveness:       h.liveness,
		SystemOfRecord: h.sor,
		Platform:       h.platform,
		Vendors:        []TranscriptionVendor{h.vendor, h.translator},
	}, nil)

	clock := func() time.Time { return h.now }
	h.engine.Ingest.now = clock
	h.engine.Delivery.now = clock
	h.engine.Heal.WithClock(clock)

	policy := retry.Linear(3, time.Second, 5*time.Second)
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.engine.Dispatcher.WithPolicy(policy)
}

func (h *harness) course(opts testutil.CourseOptions) *models.Course {
	h.t.Helper()
	c := h.gen.NewCourse(opts)
	require.NoError(h.t, h.courses.Create(context.Background(), c))
	return c
}

// video stores a video with trans_start the given age before the harness clock.
func (h *harness) video(course *models.Course, seq int, status models.VideoStatus, age time.Duration) *models.Video {
	h.t.Helper()
	v := h.gen.NewVideo(course, seq, status)
	start := h.now.Add(-age)
	v.TransStart = &start
	require.NoError(h.t, h.videos.Create(context.Background(), v))
	loaded, err := h.videos.GetByExternalID(context.Background(), v.ExternalID)
	require.NoError(h.t, err)
	return loaded
}

// deliverRecord writes an artifact for a profile directly.
func (h *harness) deliverRecord(video *models.Video, profile string) {
	h.t.Helper()
	p := testutil.Profile(h.t, h.db, profile)
	require.NoError(h.t, h.artifacts.Create(context.Background(), &models.DeliveredArtifact{
		VideoID:     video.ID,
		ProfileID:   p.ID,
		URL:         "https://cdn.example.com/endpoint/" + p.ArtifactName(video.ExternalID),
		Bitrate:     "1500k",
		Size:        1024,
		DeliveredAt: h.now,
	}))
}

// workerOutput places a worker's finished file in the deliverable bucket.
func (h *harness) workerOutput(video *models.Video, profile string) string {
	h.t.Helper()
	p := testutil.Profile(h.t, h.db, profile)
	name := p.ArtifactName(video.ExternalID)
	h.storage.put(h.cfg.Storage.DeliverableBucket, name, []byte("encoded "+profile))
	return name
}

func (h *harness) reload(video *models.Video) *models.Video {
	h.t.Helper()
	v, err := h.videos.GetByID(context.Background(), video.ID)
	require.NoError(h.t, err)
	require.NotNil(h.t, v)
	return v
}
