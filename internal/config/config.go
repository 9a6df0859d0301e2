// Package config provides configuration management for the transcoder using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultOpsPort          = 8002
	defaultShutdownTimeout  = 10 * time.Second
	defaultSessionTimeout   = 3 * time.Minute
	defaultRebalanceTimeout = 1 * time.Minute
	defaultMaxWait          = 10 * time.Second
	defaultHeartbeatPeriod  = 20 * time.Second
	defaultProgressPeriod   = 10 * time.Second
	defaultLockTTL          = 30 * time.Minute
	defaultScratchMaxAge    = 1 * time.Hour
	defaultNicePriority     = 15
	defaultAnalysisWindow   = 30 * time.Second
)

// Config holds all configuration for the transcoder worker.
type Config struct {
	Worker  WorkerConfig  `mapstructure:"worker"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Scratch ScratchConfig `mapstructure:"scratch"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// WorkerConfig selects which lanes this worker instance processes.
// A pool can run dedicated fast and slow workers against shared topics.
type WorkerConfig struct {
	Lanes        []string      `mapstructure:"lanes"` // fast, slow, clip, or all
	NicePriority int           `mapstructure:"nice_priority"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"` // 0 = no timeout
}

// KafkaConfig holds message bus configuration.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`

	// Session/rebalance timeouts are generous: a single encode step can run
	// for many minutes and the supervisor heartbeat must keep group
	// membership alive in between fetches.
	SessionTimeout   time.Duration `mapstructure:"session_timeout"`
	RebalanceTimeout time.Duration `mapstructure:"rebalance_timeout"`
	MaxWait          time.Duration `mapstructure:"max_wait"`

	Topics KafkaTopics `mapstructure:"topics"`
}

// KafkaTopics names every topic the worker consumes or produces.
type KafkaTopics struct {
	TranscodeFast    string `mapstructure:"transcode_fast"`
	TranscodeSlow    string `mapstructure:"transcode_slow"`
	ClipExtract      string `mapstructure:"clip_extract"`
	Playable         string `mapstructure:"playable"`
	SubtitleRequests string `mapstructure:"subtitle_requests"`
	VideoComplete    string `mapstructure:"video_complete"`
	SpritesComplete  string `mapstructure:"sprites_complete"`
	ClipReady        string `mapstructure:"clip_ready"`
	ClipFailed       string `mapstructure:"clip_failed"`
}

// StorageConfig holds object store configuration.
// VolumePath is the local mount of the object store used as a download fast
// path; the MinIO API is the fallback and the upload path.
type StorageConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key" masq:"secret"`
	Secure     bool   `mapstructure:"secure"`
	Bucket     string `mapstructure:"bucket"`
	VolumePath string `mapstructure:"volume_path"`
	PublicBase string `mapstructure:"public_base"` // base URL clients resolve object paths against
}

// RedisConfig holds the per-video job lock configuration.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	LockPrefix string        `mapstructure:"lock_prefix"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// FFmpegConfig holds external binary configuration.
type FFmpegConfig struct {
	BinaryPath      string        `mapstructure:"binary_path"` // empty = look up "ffmpeg" in PATH
	ProbePath       string        `mapstructure:"probe_path"`  // empty = look up "ffprobe" in PATH
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
	ProgressPeriod  time.Duration `mapstructure:"progress_period"`
	AnalysisWindow  time.Duration `mapstructure:"analysis_window"`
}

// ScratchConfig holds local scratch directory configuration.
type ScratchConfig struct {
	BaseDir  string        `mapstructure:"base_dir"` // empty = os.TempDir()
	MaxAge   time.Duration `mapstructure:"max_age"`  // orphaned dirs older than this are swept
	SweepCron string       `mapstructure:"sweep_cron"`
}

// OpsConfig holds the operational HTTP endpoint configuration.
type OpsConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with TRANSCODER_, using underscores for nesting.
// Example: TRANSCODER_KAFKA_GROUP_ID=transcoder-fast.
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
		v.AddConfigPath("/etc/transcoder")
		v.AddConfigPath("$HOME/.transcoder")
	}

	v.SetEnvPrefix("TRANSCODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployment-wide env names shared with the other services. These win
	// over file values but lose to TRANSCODER_-prefixed overrides.
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv maps the platform's shared environment variable names onto
// config keys so the worker drops into existing deployments unchanged.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("kafka.brokers", "TRANSCODER_KAFKA_BROKERS", "KAFKA_BROKERS")
	_ = v.BindEnv("storage.endpoint", "TRANSCODER_STORAGE_ENDPOINT", "MINIO_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "TRANSCODER_STORAGE_ACCESS_KEY", "MINIO_ROOT_USER", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "TRANSCODER_STORAGE_SECRET_KEY", "MINIO_ROOT_PASSWORD", "MINIO_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "TRANSCODER_STORAGE_BUCKET", "MINIO_BUCKET")
	_ = v.BindEnv("storage.volume_path", "TRANSCODER_STORAGE_VOLUME_PATH", "OPENSTREAM_VOL_PATH")
	_ = v.BindEnv("redis.url", "TRANSCODER_REDIS_URL", "REDIS_URL")
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.lanes", []string{"all"})
	v.SetDefault("worker.nice_priority", defaultNicePriority)
	v.SetDefault("worker.job_timeout", time.Duration(0))

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "transcoder")
	v.SetDefault("kafka.session_timeout", defaultSessionTimeout)
	v.SetDefault("kafka.rebalance_timeout", defaultRebalanceTimeout)
	v.SetDefault("kafka.max_wait", defaultMaxWait)
	v.SetDefault("kafka.topics.transcode_fast", "video.transcode.fast")
	v.SetDefault("kafka.topics.transcode_slow", "video.transcode.slow")
	v.SetDefault("kafka.topics.clip_extract", "clip.extract.requests")
	v.SetDefault("kafka.topics.playable", "video.playable")
	v.SetDefault("kafka.topics.subtitle_requests", "video.subtitle.requests")
	v.SetDefault("kafka.topics.video_complete", "video.complete")
	v.SetDefault("kafka.topics.sprites_complete", "video.sprites.complete")
	v.SetDefault("kafka.topics.clip_ready", "clip.ready")
	v.SetDefault("kafka.topics.clip_failed", "clip.failed")

	// Storage defaults
	v.SetDefault("storage.endpoint", "minio:9000")
	v.SetDefault("storage.secure", false)
	v.SetDefault("storage.bucket", "openstream-uploads")
	v.SetDefault("storage.volume_path", "/minio_data")
	v.SetDefault("storage.public_base", "")

	// Redis defaults
	v.SetDefault("redis.url", "redis://redis:6379")
	v.SetDefault("redis.lock_prefix", "transcode:lock")
	v.SetDefault("redis.lock_ttl", defaultLockTTL)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.heartbeat_period", defaultHeartbeatPeriod)
	v.SetDefault("ffmpeg.progress_period", defaultProgressPeriod)
	v.SetDefault("ffmpeg.analysis_window", defaultAnalysisWindow)

	// Scratch defaults
	v.SetDefault("scratch.base_dir", "")
	v.SetDefault("scratch.max_age", defaultScratchMaxAge)
	v.SetDefault("scratch.sweep_cron", "@every 15m")

	// Ops endpoint defaults
	v.SetDefault("ops.host", "0.0.0.0")
	v.SetDefault("ops.port", defaultOpsPort)
	v.SetDefault("ops.shutdown_timeout", defaultShutdownTimeout)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLanes := map[string]bool{"fast": true, "slow": true, "clip": true, "all": true}
	if len(c.Worker.Lanes) == 0 {
		return fmt.Errorf("worker.lanes must name at least one lane")
	}
	for _, lane := range c.Worker.Lanes {
		if !validLanes[lane] {
			return fmt.Errorf("worker.lanes entry %q must be one of: fast, slow, clip, all", lane)
		}
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("kafka.group_id is required")
	}
	if c.Kafka.SessionTimeout <= 0 {
		return fmt.Errorf("kafka.session_timeout must be positive")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}

	const maxPort = 65535
	if c.Ops.Port < 1 || c.Ops.Port > maxPort {
		return fmt.Errorf("ops.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
