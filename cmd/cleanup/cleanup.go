package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"

	"github.com/getsentry/probetools/internal/logutil"
	"github.com/getsentry/probetools/internal/storageprovider"
)

type config struct {
	BucketURL     string `env:"PROBED_REPORTS_BUCKET_URL" env-default:"file:///var/lib/sentry-probe-reports"`
	Prefix        string `env:"PROBED_REPORTS_PREFIX" env-default:"reports/"`
	RetentionDays int    `env:"SENTRY_EVENT_RETENTION_DAYS" env-default:"90"`
	Schedule      string `env:"PROBED_CLEANUP_SCHEDULE" env-default:"@daily"`
	LogLevel      string `env:"PROBED_LOG_LEVEL" env-default:"info"`
}

// cleanup deletes every object under prefix last modified before
// timeLimit and returns how many were deleted.
func cleanup(ctx context.Context, bucket *blob.Bucket, prefix string, timeLimit time.Time) (int, error) {
	var deleted int
	it := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return deleted, nil
		}
		if err != nil {
			return deleted, err
		}
		if obj.IsDir || !timeLimit.After(obj.ModTime) {
			continue
		}
		if err := bucket.Delete(ctx, obj.Key); err != nil {
			return deleted, err
		}
		deleted++
	}
}

func main() {
	var cfg config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatal().Err(err).Msg("can't read configuration")
	}
	logutil.ConfigureLogger(logutil.ParseLevel(cfg.LogLevel))

	err := sentry.Init(sentry.ClientOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	ctx := context.Background()
	bucket, err := storageprovider.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		log.Fatal().Err(err).Msg("can't open reports bucket")
	}
	defer bucket.Close()

	retention := 24 * time.Hour * time.Duration(cfg.RetentionDays)

	c := cron.New()
	_, err = c.AddFunc(cfg.Schedule, func() {
		timeLimit := time.Now().Add(-retention)
		deleted, err := cleanup(ctx, bucket, cfg.Prefix, timeLimit)
		if err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Int("deleted", deleted).Msg("error cleaning up reports")
			return
		}
		log.Info().Int("deleted", deleted).Time("before", timeLimit).Msg("reports cleaned up")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't set up cron function")
	}

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, os.Interrupt)

	go func() {
		<-exitSignal

		c.Stop()
	}()

	c.Run()
	sentry.Flush(5 * time.Second)
}
