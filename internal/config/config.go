// Package config provides configuration management for vidpipe using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort           = 8080
	defaultServerTimeout        = 30 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultMaxOpenConns         = 25
	defaultMaxIdleConns         = 10
	defaultConnMaxIdleTime      = 30 * time.Minute
	defaultMultipartThreshold   = 5 * 1024 * 1024
	defaultMultipartChunkSize   = 5 * 1024 * 1024
	defaultArchiveChunkSize     = 10 * 1024 * 1024
	defaultLargefileThreshold   = 10 * 1024 * 1024 * 1024
	defaultPublishAttempts      = 3
	defaultPublishBackoffStep   = time.Second
	defaultPublishBackoffMax    = 5 * time.Second
	defaultHealWindowEnd        = 144 * time.Hour
	defaultRetryBarrier         = 24 * time.Hour
	defaultPurgeMaxAge          = 24 * time.Hour
	defaultRunnerWorkers        = 2
	defaultRunnerPollInterval   = 5 * time.Second
	defaultRunnerJobTimeout     = 30 * time.Minute
	defaultRunnerLockTimeout    = 45 * time.Minute
	defaultRunnerCleanupAge     = 7 * 24 * time.Hour
	defaultExternalTimeout      = 20 * time.Second
	defaultProbeTimeout         = 60 * time.Second
	defaultDurationTolerance    = 5 * time.Second
	defaultYouTubePort          = 19321
	defaultLivenessTimeout      = 10 * time.Second
	defaultTranscriptionTimeout = 30 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Heal          HealConfig          `mapstructure:"heal"`
	Runner        RunnerConfig        `mapstructure:"runner"`
	Profiles      ProfilesConfig      `mapstructure:"profiles"`
	VAL           VALConfig           `mapstructure:"val"`
	FFmpeg        FFmpegConfig        `mapstructure:"ffmpeg"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	YouTube       YouTubeConfig       `mapstructure:"youtube"`
	Liveness      LivenessConfig      `mapstructure:"liveness"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig holds object storage and work directory configuration.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // local, s3
	// BaseDir is the root of the local backend; each bucket is a subdirectory.
	BaseDir string `mapstructure:"base_dir"`
	// WorkDir holds files fetched for validation and probing.
	WorkDir string `mapstructure:"work_dir"`

	IntakeBucket      string `mapstructure:"intake_bucket"`
	DeliverableBucket string `mapstructure:"deliverable_bucket"`
	HotstoreBucket    string `mapstructure:"hotstore_bucket"`
	EndpointBucket    string `mapstructure:"endpoint_bucket"`
	// TranscriptBucket receives converted transcripts; keys start with TranscriptPrefix.
	TranscriptBucket string `mapstructure:"transcript_bucket"`
	TranscriptPrefix string `mapstructure:"transcript_prefix"`

	// MultipartThreshold is the size above which deliveries use multipart upload.
	MultipartThreshold ByteSize `mapstructure:"multipart_threshold"`
	MultipartChunkSize ByteSize `mapstructure:"multipart_chunk_size"`
	// ArchiveChunkSize is the part size used when archiving raw files to the hotstore.
	ArchiveChunkSize ByteSize `mapstructure:"archive_chunk_size"`

	Region           string `mapstructure:"region"`
	Endpoint         string `mapstructure:"endpoint"`
	PathStyle        bool   `mapstructure:"path_style"`
	PublicBaseURL    string `mapstructure:"public_base_url"`
	CloudfrontPrefix string `mapstructure:"cloudfront_prefix"`

	// Timeout bounds each storage request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueueConfig holds task broker configuration.
type QueueConfig struct {
	DefaultQueue       string   `mapstructure:"default_queue"`
	LargefileQueue     string   `mapstructure:"largefile_queue"`
	LargefileThreshold ByteSize `mapstructure:"largefile_threshold"`
	PublishAttempts    int      `mapstructure:"publish_attempts"`
	PublishBackoffStep Duration `mapstructure:"publish_backoff_step"`
	PublishBackoffMax  Duration `mapstructure:"publish_backoff_max"`
	TaskName           string   `mapstructure:"task_name"`
	// PublishTimeout bounds a single enqueue attempt.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// HealConfig holds reconciliation cycle configuration.
type HealConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a 5-field cron expression for the heal cycle.
	Schedule string `mapstructure:"schedule"`
	// WindowStart and WindowEnd bound the trans_start age of scanned videos.
	WindowStart   Duration `mapstructure:"window_start"`
	WindowEnd     Duration `mapstructure:"window_end"`
	RetryBarrier  Duration `mapstructure:"retry_barrier"`
	LockFile      string   `mapstructure:"lock_file"`
	PurgeSchedule string   `mapstructure:"purge_schedule"`
	PurgeMaxAge   Duration `mapstructure:"purge_max_age"`
}

// RunnerConfig holds background job runner configuration.
type RunnerConfig struct {
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	CleanupAge   Duration      `mapstructure:"cleanup_age"`
}

// ProfilesConfig holds the course toggle to profile family table and the
// mapping from local profiles to the profile names the VAL knows.
type ProfilesConfig struct {
	Families              map[string][]string `mapstructure:"families"`
	ExternalProfiles      map[string][]string `mapstructure:"external_profiles"`
	ReviewProfile         string              `mapstructure:"review_profile"`
	MobileOverrideProfile string              `mapstructure:"mobile_override_profile"`
	HLSProfile            string              `mapstructure:"hls_profile"`
	DesktopProfile        string              `mapstructure:"desktop_profile"`
	YouTubeProfile        string              `mapstructure:"youtube_profile"`
}

// VALConfig holds video asset library (system of record) configuration.
type VALConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	TokenURL            string        `mapstructure:"token_url"`
	APIURL              string        `mapstructure:"api_url"`
	TranscriptStatusURL string        `mapstructure:"transcript_status_url"`
	TranscriptCreateURL string        `mapstructure:"transcript_create_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret" masq:"secret"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password" masq:"secret"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// FFmpegConfig holds ffprobe configuration.
type FFmpegConfig struct {
	ProbePath         string        `mapstructure:"probe_path"` // empty = look up ffprobe on PATH
	Timeout           time.Duration `mapstructure:"timeout"`
	DurationTolerance time.Duration `mapstructure:"duration_tolerance"`
}

// TranscriptionConfig holds transcription vendor configuration.
type TranscriptionConfig struct {
	CallbackBaseURL string `mapstructure:"callback_base_url"`
	CallbackToken   string `mapstructure:"callback_token" masq:"secret"`
	Cielo24APIURL   string `mapstructure:"cielo24_api_url"`
	ThreePlayAPIURL string `mapstructure:"threeplay_api_url"`
	// ThreePlayTranscriptURL serves finished transcripts and translations.
	ThreePlayTranscriptURL string        `mapstructure:"threeplay_transcript_url"`
	Timeout                time.Duration `mapstructure:"timeout"`
	DefaultTurnaround      string        `mapstructure:"default_turnaround"`
	// TranslationSchedule is a 5-field cron expression for collecting
	// finished 3Play translations. Empty disables it.
	TranslationSchedule string `mapstructure:"translation_schedule"`
}

// YouTubeConfig holds the partner SFTP hand-off configuration.
type YouTubeConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	KnownHostsPath string `mapstructure:"known_hosts_path"`
	RemoteRoot     string `mapstructure:"remote_root"`
}

// LivenessConfig holds destination URL check configuration.
type LivenessConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VIDPIPE_ and use underscores for nesting.
// Example: VIDPIPE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vidpipe")
		v.AddConfigPath("$HOME/.vidpipe")
	}

	v.SetEnvPrefix("VIDPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DecodeHook returns the mapstructure hook chain used when unmarshaling.
// ByteSize and Duration values accept human-readable strings.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// DefaultFamilies is the toggle to profile table used when none is configured.
func DefaultFamilies() map[string][]string {
	return map[string][]string{
		"review_proc":     {"review"},
		"mobile_override": {"override"},
		"s3_proc":         {"mobile_high", "mobile_low", "audio_mp3", "desktop_webm", "desktop_mp4", "hls"},
		"yt_proc":         {"youtube"},
	}
}

// DefaultExternalProfiles maps local profiles to VAL profile names.
// Profiles missing from the table report under their own name.
func DefaultExternalProfiles() map[string][]string {
	return map[string][]string{
		"override": {"desktop_mp4", "mobile_low", "mobile_high"},
		"review":   {},
	}
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vidpipe.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.work_dir", "./data/work")
	v.SetDefault("storage.intake_bucket", "intake")
	v.SetDefault("storage.deliverable_bucket", "deliverable")
	v.SetDefault("storage.hotstore_bucket", "hotstore")
	v.SetDefault("storage.endpoint_bucket", "endpoint")
	v.SetDefault("storage.transcript_bucket", "transcripts")
	v.SetDefault("storage.transcript_prefix", "video-transcripts/")
	v.SetDefault("storage.multipart_threshold", defaultMultipartThreshold)
	v.SetDefault("storage.multipart_chunk_size", defaultMultipartChunkSize)
	v.SetDefault("storage.archive_chunk_size", defaultArchiveChunkSize)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.path_style", false)
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.cloudfront_prefix", "")
	v.SetDefault("storage.timeout", defaultExternalTimeout)

	// Queue defaults
	v.SetDefault("queue.default_queue", "encode")
	v.SetDefault("queue.largefile_queue", "encode_largefile")
	v.SetDefault("queue.largefile_threshold", int64(defaultLargefileThreshold))
	v.SetDefault("queue.publish_attempts", defaultPublishAttempts)
	v.SetDefault("queue.publish_backoff_step", defaultPublishBackoffStep.String())
	v.SetDefault("queue.publish_backoff_max", defaultPublishBackoffMax.String())
	v.SetDefault("queue.task_name", "worker.encode")
	v.SetDefault("queue.publish_timeout", defaultExternalTimeout)

	// Heal defaults
	v.SetDefault("heal.enabled", true)
	v.SetDefault("heal.schedule", "*/30 * * * *")
	v.SetDefault("heal.window_start", "0s")
	v.SetDefault("heal.window_end", Duration(defaultHealWindowEnd).String())
	v.SetDefault("heal.retry_barrier", Duration(defaultRetryBarrier).String())
	v.SetDefault("heal.lock_file", filepath.Join(".", "data", "heal.lock"))
	v.SetDefault("heal.purge_schedule", "15 * * * *")
	v.SetDefault("heal.purge_max_age", Duration(defaultPurgeMaxAge).String())

	// Runner defaults
	v.SetDefault("runner.workers", defaultRunnerWorkers)
	v.SetDefault("runner.poll_interval", defaultRunnerPollInterval)
	v.SetDefault("runner.job_timeout", defaultRunnerJobTimeout)
	v.SetDefault("runner.lock_timeout", defaultRunnerLockTimeout)
	v.SetDefault("runner.cleanup_age", Duration(defaultRunnerCleanupAge).String())

	// Profile defaults
	v.SetDefault("profiles.families", DefaultFamilies())
	v.SetDefault("profiles.external_profiles", DefaultExternalProfiles())
	v.SetDefault("profiles.review_profile", "review")
	v.SetDefault("profiles.mobile_override_profile", "override")
	v.SetDefault("profiles.hls_profile", "hls")
	v.SetDefault("profiles.desktop_profile", "desktop_mp4")
	v.SetDefault("profiles.youtube_profile", "youtube")

	// VAL defaults
	v.SetDefault("val.enabled", false)
	v.SetDefault("val.token_url", "")
	v.SetDefault("val.api_url", "")
	v.SetDefault("val.transcript_status_url", "")
	v.SetDefault("val.transcript_create_url", "")
	v.SetDefault("val.timeout", defaultExternalTimeout)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.duration_tolerance", defaultDurationTolerance)

	// Transcription defaults
	v.SetDefault("transcription.callback_base_url", "")
	v.SetDefault("transcription.callback_token", "")
	v.SetDefault("transcription.cielo24_api_url", "https://api.cielo24.com/api/v1")
	v.SetDefault("transcription.threeplay_api_url", "https://api.3playmedia.com")
	v.SetDefault("transcription.threeplay_transcript_url", "https://static.3playmedia.com")
	v.SetDefault("transcription.timeout", defaultTranscriptionTimeout)
	v.SetDefault("transcription.default_turnaround", "STANDARD")
	v.SetDefault("transcription.translation_schedule", "*/10 * * * *")

	// YouTube defaults
	v.SetDefault("youtube.host", "partnerupload.google.com")
	v.SetDefault("youtube.port", defaultYouTubePort)
	v.SetDefault("youtube.private_key_path", "")
	v.SetDefault("youtube.known_hosts_path", "")
	v.SetDefault("youtube.remote_root", ".")

	// Liveness defaults
	v.SetDefault("liveness.timeout", defaultLivenessTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case "s3":
	default:
		return fmt.Errorf("storage.backend must be one of: local, s3")
	}
	if c.Storage.WorkDir == "" {
		return fmt.Errorf("storage.work_dir is required")
	}
	if c.Storage.DeliverableBucket == "" || c.Storage.EndpointBucket == "" || c.Storage.HotstoreBucket == "" {
		return fmt.Errorf("storage deliverable, endpoint and hotstore buckets are required")
	}

	if c.Queue.DefaultQueue == "" || c.Queue.LargefileQueue == "" {
		return fmt.Errorf("queue.default_queue and queue.largefile_queue are required")
	}
	if c.Queue.PublishAttempts < 1 {
		return fmt.Errorf("queue.publish_attempts must be at least 1")
	}

	if c.Heal.WindowEnd.Duration() <= c.Heal.WindowStart.Duration() {
		return fmt.Errorf("heal.window_end must be greater than heal.window_start")
	}

	if c.Runner.Workers < 1 {
		return fmt.Errorf("runner.workers must be at least 1")
	}

	if len(c.Profiles.Families) == 0 {
		return fmt.Errorf("profiles.families must not be empty")
	}

	if c.VAL.Enabled && (c.VAL.TokenURL == "" || c.VAL.APIURL == "") {
		return fmt.Errorf("val.token_url and val.api_url are required when val is enabled")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HealWindow returns the scan window relative to now: videos whose
// trans_start lies strictly between from and to are candidates.
func (c *HealConfig) HealWindow(now time.Time) (from, to time.Time) {
	return now.Add(-c.WindowEnd.Duration()), now.Add(-c.WindowStart.Duration())
}

// ExternalProfilesFor returns the VAL profile names a local profile reports under.
func (c *ProfilesConfig) ExternalProfilesFor(profile string) []string {
	if mapped, ok := c.ExternalProfiles[profile]; ok {
		return mapped
	}
	return []string{profile}
}
