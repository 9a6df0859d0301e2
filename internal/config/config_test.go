package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Worker: WorkerConfig{Lanes: []string{"all"}},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			GroupID:        "transcoder",
			SessionTimeout: 3 * time.Minute,
		},
		Storage: StorageConfig{
			Endpoint: "minio:9000",
			Bucket:   "openstream-uploads",
		},
		Ops:     OpsConfig{Port: 8002},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Worker defaults
	assert.Equal(t, []string{"all"}, cfg.Worker.Lanes)
	assert.Equal(t, 15, cfg.Worker.NicePriority)

	// Kafka defaults
	assert.Equal(t, "transcoder", cfg.Kafka.GroupID)
	assert.Equal(t, 3*time.Minute, cfg.Kafka.SessionTimeout)
	assert.Equal(t, "video.transcode.fast", cfg.Kafka.Topics.TranscodeFast)
	assert.Equal(t, "video.transcode.slow", cfg.Kafka.Topics.TranscodeSlow)
	assert.Equal(t, "video.playable", cfg.Kafka.Topics.Playable)
	assert.Equal(t, "video.sprites.complete", cfg.Kafka.Topics.SpritesComplete)

	// Storage defaults
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "openstream-uploads", cfg.Storage.Bucket)
	assert.Equal(t, "/minio_data", cfg.Storage.VolumePath)

	// Redis defaults
	assert.Equal(t, "redis://redis:6379", cfg.Redis.URL)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)

	// FFmpeg defaults
	assert.Equal(t, 20*time.Second, cfg.FFmpeg.HeartbeatPeriod)
	assert.Equal(t, 30*time.Second, cfg.FFmpeg.AnalysisWindow)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
worker:
  lanes: [slow]
kafka:
  group_id: transcoder-slow
  brokers: [kafka-1:9092, kafka-2:9092]
storage:
  bucket: vod-renditions
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"slow"}, cfg.Worker.Lanes)
	assert.Equal(t, "transcoder-slow", cfg.Kafka.GroupID)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "vod-renditions", cfg.Storage.Bucket)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Untouched keys keep defaults
	assert.Equal(t, "video.transcode.slow", cfg.Kafka.Topics.TranscodeSlow)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:9092")
	t.Setenv("MINIO_ENDPOINT", "objectstore:9000")
	t.Setenv("MINIO_ROOT_USER", "minio-admin")
	t.Setenv("OPENSTREAM_VOL_PATH", "/mnt/objects")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-a:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "objectstore:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "minio-admin", cfg.Storage.AccessKey)
	assert.Equal(t, "/mnt/objects", cfg.Storage.VolumePath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no lanes", func(c *Config) { c.Worker.Lanes = nil }, "worker.lanes"},
		{"bad lane", func(c *Config) { c.Worker.Lanes = []string{"turbo"} }, "worker.lanes"},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"no group", func(c *Config) { c.Kafka.GroupID = "" }, "kafka.group_id"},
		{"no endpoint", func(c *Config) { c.Storage.Endpoint = "" }, "storage.endpoint"},
		{"no bucket", func(c *Config) { c.Storage.Bucket = "" }, "storage.bucket"},
		{"bad port", func(c *Config) { c.Ops.Port = 0 }, "ops.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
