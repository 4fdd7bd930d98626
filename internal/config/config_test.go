package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ARCHIVE_ROOT", "/var/lib/dose-etl/archive")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/dose-etl/archive", cfg.ArchiveRoot)
	assert.Equal(t, "intake", cfg.IntakeDir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.MinOverlap)
	assert.Equal(t, 10*time.Minute, cfg.OffsetWindow)
	assert.Equal(t, time.Second, cfg.OffsetStep)
	assert.Equal(t, 0.6, cfg.MinFitR2)
	assert.True(t, cfg.ForceOriginFit)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "processed-flights", cfg.KafkaNotifyTopic)
	assert.False(t, cfg.NotifyEnabled)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("ARCHIVE_ROOT", "/srv/archive")
	t.Setenv("INTAKE_DIR", "/srv/intake")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CONCURRENCY", "8")
	t.Setenv("MIN_OVERLAP", "45m")
	t.Setenv("OFFSET_WINDOW", "5m")
	t.Setenv("OFFSET_STEP", "2s")
	t.Setenv("MIN_FIT_R2", "0.8")
	t.Setenv("FORCE_ORIGIN_FIT", "false")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_NOTIFY_TOPIC", "calibrated")
	t.Setenv("NOTIFY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/archive", cfg.ArchiveRoot)
	assert.Equal(t, "/srv/intake", cfg.IntakeDir)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 45*time.Minute, cfg.MinOverlap)
	assert.Equal(t, 5*time.Minute, cfg.OffsetWindow)
	assert.Equal(t, 2*time.Second, cfg.OffsetStep)
	assert.Equal(t, 0.8, cfg.MinFitR2)
	assert.False(t, cfg.ForceOriginFit)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "calibrated", cfg.KafkaNotifyTopic)
	assert.True(t, cfg.NotifyEnabled)
}

func TestLoad_MissingArchiveRoot(t *testing.T) {
	t.Setenv("ARCHIVE_ROOT", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARCHIVE_ROOT")
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "MIN_OVERLAP", "soon"},
		{"negative duration", "OFFSET_WINDOW", "-5m"},
		{"bad concurrency", "CONCURRENCY", "many"},
		{"zero concurrency", "CONCURRENCY", "0"},
		{"r2 above one", "MIN_FIT_R2", "1.5"},
		{"step wider than window", "OFFSET_STEP", "20m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ARCHIVE_ROOT", "/srv/archive")
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestAlignConfigProjection(t *testing.T) {
	t.Setenv("ARCHIVE_ROOT", "/srv/archive")
	t.Setenv("OFFSET_WINDOW", "3m")
	t.Setenv("MIN_FIT_R2", "0.75")

	cfg, err := Load()
	require.NoError(t, err)

	ac := cfg.AlignConfig()
	assert.Equal(t, 3*time.Minute, ac.Window)
	assert.Equal(t, time.Second, ac.Step)
	assert.Equal(t, 0.75, ac.MinFitR2)
	assert.True(t, ac.ForceOrigin)

	nc := cfg.NormalizeConfig()
	assert.Equal(t, 30*time.Minute, nc.MinOverlap)
}
