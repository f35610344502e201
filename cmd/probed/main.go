package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/CAFxX/httpcompression"
	"github.com/dgraph-io/badger/v4"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/probetools/internal/envutil"
	"github.com/getsentry/probetools/internal/httputil"
	"github.com/getsentry/probetools/internal/logutil"
	"github.com/getsentry/probetools/internal/storageprovider"
	"github.com/getsentry/probetools/internal/storageutil"
)

type environment struct {
	config ServiceConfig

	reports       storageutil.ObjectHandler
	reportsWriter messageWriter

	closers []func() error
}

var release string

func newEnvironment(ctx context.Context, config ServiceConfig) (*environment, error) {
	e := environment{config: config}

	switch {
	case config.ReportsGCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		e.reports = &storageprovider.GCS{BucketHandle: client.Bucket(config.ReportsGCSBucket)}
	case config.ReportsBadgerDir != "":
		db, err := badger.Open(badger.DefaultOptions(config.ReportsBadgerDir))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, db.Close)
		e.reports = &storageprovider.Badger{DB: db}
	case config.ReportsBucketURL != "":
		bucket, err := storageprovider.OpenBucket(ctx, config.ReportsBucketURL)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, bucket.Close)
		e.reports = &storageprovider.Blob{Bucket: bucket}
	default:
		return nil, errors.New("no storage configured for reports")
	}

	if len(config.KafkaBrokers) > 0 {
		w := &kafka.Writer{
			Addr:         kafka.TCP(config.KafkaBrokers...),
			Async:        true,
			Balancer:     kafka.CRC32Balancer{},
			BatchSize:    10,
			Compression:  kafka.Lz4,
			ReadTimeout:  3 * time.Second,
			Topic:        config.ReportsKafkaTopic,
			WriteTimeout: 3 * time.Second,
		}
		e.closers = append(e.closers, w.Close)
		e.reportsWriter = w
	}
	return &e, nil
}

func (e *environment) shutdown() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/traces", e.postTrace},
		{http.MethodGet, "/reports/:report_id", e.getReport},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func (e *environment) newHandler() (http.Handler, error) {
	router, err := e.newRouter()
	if err != nil {
		return nil, err
	}
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(router), nil
}

func (e *environment) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("can't read configuration")
	}
	logutil.ConfigureLogger(logutil.ParseLevel(config.LogLevel))

	err = sentry.Init(sentry.ClientOptions{
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
		Dsn:              config.SentryDSN,
		EnableTracing:    true,
		Environment:      config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	env, err := newEnvironment(context.Background(), config)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	handler, err := env.newHandler()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:              ":" + envutil.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	waitForShutdown := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("addr", server.Addr).Msg("serving")
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	env.shutdown()
}
