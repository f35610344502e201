package main

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/getsentry/probetools/internal/report"
)

type (
	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// ReportKafkaMessage announces a stored report to downstream consumers.
	ReportKafkaMessage struct {
		ReportID    string `json:"report_id"`
		TraceName   string `json:"trace_name"`
		Edges       int    `json:"edges"`
		Probes      int    `json:"probes"`
		LostLookups uint64 `json:"lost_lookups"`
		Received    int64  `json:"received"`
		Recorded    int64  `json:"recorded,omitempty"`
	}
)

func buildReportKafkaMessage(r report.Report, received time.Time) ReportKafkaMessage {
	m := ReportKafkaMessage{
		ReportID:    r.ID,
		TraceName:   r.Name,
		Edges:       len(r.Edges),
		Probes:      len(r.Probes),
		LostLookups: r.LostLookups,
		Received:    received.Unix(),
	}
	if !r.RecordedAt.IsZero() {
		m.Recorded = r.RecordedAt.Time().Unix()
	}
	return m
}
