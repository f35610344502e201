package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gocloud.dev/gcerrors"

	"github.com/getsentry/probetools/internal/errorutil"
	"github.com/getsentry/probetools/internal/report"
	"github.com/getsentry/probetools/internal/snapshot"
	"github.com/getsentry/probetools/internal/storageutil"
	"github.com/getsentry/probetools/internal/trace"
)

type PostTraceResponse struct {
	ReportID string `json:"report_id"`
}

func (env *environment) postTrace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	received := time.Now()

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Read HTTP body"
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, env.config.MaxTraceBytes))
	s.Finish()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "trace is too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s = sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Decode trace"
	t, err := trace.Decode(bytes.NewReader(body))
	s.Finish()
	if err != nil {
		log.Debug().Err(err).Msg("trace can't be decoded")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	} else if _, err := uuid.Parse(t.ID); err != nil {
		http.Error(w, "trace id is not a valid uuid", http.StatusBadRequest)
		return
	}

	hub.Scope().SetTags(map[string]string{
		"trace_name": t.Name,
	})
	hub.Scope().SetContext("Trace", map[string]interface{}{
		"id":     t.ID,
		"events": len(t.Events),
	})

	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Replay trace"
	snap, err := trace.Replay(ctx, t, env.config.Session, log.Logger)
	s.Finish()
	if err != nil {
		switch {
		case errors.Is(err, errorutil.ErrDataIntegrity):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, snapshot.ErrSnapshotTooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, context.Canceled):
			w.WriteHeader(http.StatusRequestTimeout)
		default:
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	rep := report.New(t.ID, t.Name, snap)
	rep.RecordedAt = t.RecordedAt

	s = sentry.StartSpan(ctx, "storage.write")
	s.Description = "Write report"
	err = storageutil.CompressedWrite(ctx, env.reports, rep.StoragePath(), rep)
	s.Finish()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			hub.CaptureException(err)
			if code := gcerrors.Code(err); code == gcerrors.FailedPrecondition {
				w.WriteHeader(http.StatusPreconditionFailed)
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}
		return
	}

	if env.reportsWriter != nil {
		s = sentry.StartSpan(ctx, "json.marshal")
		s.Description = "Marshal report Kafka message"
		b, err := gojson.Marshal(buildReportKafkaMessage(rep, received))
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s = sentry.StartSpan(ctx, "processing")
		s.Description = "Send report to Kafka"
		err = env.reportsWriter.WriteMessages(ctx, kafka.Message{
			Key:   []byte(rep.ID),
			Value: b,
		})
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	b, err := gojson.Marshal(PostTraceResponse{ReportID: rep.ID})
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(b)
}

func (env *environment) getReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)

	reportID := ps.ByName("report_id")
	if _, err := uuid.Parse(reportID); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	hub.Scope().SetTag("report_id", reportID)

	s := sentry.StartSpan(ctx, "storage.read")
	s.Description = "Read report"
	var rep report.Report
	err := storageutil.UnmarshalCompressed(ctx, env.reports, report.StoragePath(reportID), &rep)
	s.Finish()
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal report"
	b, err := gojson.Marshal(rep)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
