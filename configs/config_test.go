package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, *config.DefaultFeatureConfig(), cfg.Audio.FeatureConfig)
	assert.Equal(t, int64(64<<20), cfg.Audio.MaxInputBytes)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "genre_classifier.json", filepath.Base(cfg.Model.ClassifierPath))
	assert.Equal(t, "scaler.json", filepath.Base(cfg.Model.ScalerPath))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genre-sonar.yaml")
	content := `
log_level: debug
output_format: json
audio:
  sample_rate: 0
  max_duration: 10s
  hop_size: 256
model:
  classifier_path: /srv/models/svc.msgpack
  scaler_path: /srv/models/scaler.yaml
pipeline:
  timeout: 5s
  keep_playback: true
  max_concurrency: 2
metrics:
  enabled: true
  address: statsd:8125
  tags: [env:test]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 0, cfg.Audio.SampleRate)
	assert.Equal(t, 10*time.Second, cfg.Audio.MaxDuration)
	assert.Equal(t, 256, cfg.Audio.HopSize)
	assert.Equal(t, 2048, cfg.Audio.WindowSize, "unset keys keep their defaults")
	assert.Equal(t, "/srv/models/svc.msgpack", cfg.Model.ClassifierPath)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Timeout)
	assert.True(t, cfg.Pipeline.KeepPlayback)
	assert.Equal(t, 2, cfg.Pipeline.MaxConcurrency)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"env:test"}, cfg.Metrics.Tags)

	fc := cfg.FeatureConfig()
	fc.HopSize = 1
	assert.Equal(t, 256, cfg.Audio.HopSize, "FeatureConfig returns a copy")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad window", func(c *Config) { c.Audio.WindowSize = 1 }},
		{"negative input cap", func(c *Config) { c.Audio.MaxInputBytes = -1 }},
		{"negative timeout", func(c *Config) { c.Pipeline.Timeout = -time.Second }},
		{"no workers", func(c *Config) { c.Pipeline.MaxConcurrency = 0 }},
		{"negative precision", func(c *Config) { c.Output.Precision = -1 }},
		{"unknown output", func(c *Config) { c.OutputFormat = "xml" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "logfmt" }},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}},
	}

	require.NoError(t, ValidateConfig(GetDefaultConfig()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}
