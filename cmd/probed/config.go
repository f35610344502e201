package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/getsentry/probetools/internal/envutil"
	"github.com/getsentry/probetools/internal/session"
)

type (
	ServiceConfig struct {
		Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
		SentryDSN   string `env:"SENTRY_DSN"`
		LogLevel    string `env:"PROBED_LOG_LEVEL" env-default:"info"`

		// Reports go to the first configured backend: a GCS bucket, a
		// badger directory, or a gocloud bucket URL.
		ReportsGCSBucket string `env:"PROBED_REPORTS_GCS_BUCKET"`
		ReportsBadgerDir string `env:"PROBED_REPORTS_BADGER_DIR"`
		ReportsBucketURL string `env:"PROBED_REPORTS_BUCKET_URL"`

		KafkaBrokers      []string `env:"PROBED_KAFKA_BROKERS" env-separator:","`
		ReportsKafkaTopic string   `env:"PROBED_REPORTS_KAFKA_TOPIC" env-default:"probe-reports"`

		// MaxTraceBytes bounds a decompressed trace upload.
		MaxTraceBytes int64 `env:"PROBED_MAX_TRACE_BYTES" env-default:"33554432"`

		Session session.Config
	}
)

var environmentDefaults = map[string]ServiceConfig{
	"production": {
		ReportsGCSBucket:  "sentry-probe-reports",
		KafkaBrokers:      []string{"kafka-profiling.service.us-central1.consul:9092"},
		ReportsKafkaTopic: "probe-reports",
	},
	"development": {
		ReportsBucketURL:  "file:///var/lib/sentry-probe-reports",
		ReportsKafkaTopic: "probe-reports",
	},
}

// loadConfig starts from the defaults of the environment and applies
// whatever the process environment overrides.
func loadConfig() (ServiceConfig, error) {
	envName := envutil.GetEnvOrFallback("SENTRY_ENVIRONMENT", "development")
	cfg, exists := environmentDefaults[envName]
	if !exists {
		return ServiceConfig{}, fmt.Errorf("service config for environment %v does not exist", envName)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.MaxTraceBytes <= 0 {
		return ServiceConfig{}, fmt.Errorf("PROBED_MAX_TRACE_BYTES must be positive, got %d", cfg.MaxTraceBytes)
	}
	return cfg, nil
}
