package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ArchiveRoot     string
	IntakeDir       string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Calibration parameters.
	Concurrency    int
	MinOverlap     time.Duration
	OffsetWindow   time.Duration
	OffsetStep     time.Duration
	MinFitR2       float64
	ForceOriginFit bool

	// Downstream notification configuration.
	KafkaBrokers     []string
	KafkaNotifyTopic string
	NotifyEnabled    bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	minOverlap, err := parseDuration("MIN_OVERLAP", "30m")
	if err != nil {
		return nil, err
	}
	offsetWindow, err := parseDuration("OFFSET_WINDOW", "10m")
	if err != nil {
		return nil, err
	}
	offsetStep, err := parseDuration("OFFSET_STEP", "1s")
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	minFitR2, err := parseFloat("MIN_FIT_R2", 0.6)
	if err != nil {
		return nil, err
	}

	notifyEnabled := false
	if v := os.Getenv("NOTIFY_ENABLED"); v != "" {
		notifyEnabled = v == "true"
	}

	cfg := &Config{
		ArchiveRoot:     os.Getenv("ARCHIVE_ROOT"),
		IntakeDir:       envOrDefault("INTAKE_DIR", "intake"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Concurrency:    concurrency,
		MinOverlap:     minOverlap,
		OffsetWindow:   offsetWindow,
		OffsetStep:     offsetStep,
		MinFitR2:       minFitR2,
		ForceOriginFit: envOrDefault("FORCE_ORIGIN_FIT", "true") == "true",

		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaNotifyTopic: envOrDefault("KAFKA_NOTIFY_TOPIC", "processed-flights"),
		NotifyEnabled:    notifyEnabled,
	}

	if cfg.ArchiveRoot == "" {
		return nil, errors.New("ARCHIVE_ROOT is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, errors.New("CONCURRENCY must be positive")
	}
	if cfg.OffsetStep <= 0 || cfg.OffsetWindow < cfg.OffsetStep {
		return nil, errors.New("OFFSET_WINDOW must cover at least one OFFSET_STEP")
	}
	if cfg.MinFitR2 < 0 || cfg.MinFitR2 > 1 {
		return nil, errors.New("MIN_FIT_R2 must be within [0, 1]")
	}
	if cfg.NotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("NOTIFY_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.NotifyEnabled && cfg.KafkaNotifyTopic == "" {
		return nil, errors.New("NOTIFY_ENABLED is true but KAFKA_NOTIFY_TOPIC is not set")
	}

	return cfg, nil
}

// NormalizeConfig projects the settings the timestamp normalizer needs.
func (c *Config) NormalizeConfig() domain.NormalizeConfig {
	return domain.NormalizeConfig{MinOverlap: c.MinOverlap}
}

// AlignConfig projects the settings the alignment engine needs.
func (c *Config) AlignConfig() domain.AlignConfig {
	return domain.AlignConfig{
		Window:      c.OffsetWindow,
		Step:        c.OffsetStep,
		MinFitR2:    c.MinFitR2,
		ForceOrigin: c.ForceOriginFit,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
