// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeranaias/relaychat/internal/backend"
)

const instrumentationName = "github.com/jeranaias/relaychat/internal/session"

// instruments holds the tracer and metric instruments. They come from the
// global providers, which are no-ops unless telemetry is enabled.
type instruments struct {
	tracer   trace.Tracer
	sessions metric.Int64Counter
	ttft     metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	in.sessions, err = meter.Int64Counter("relaychat.sessions",
		metric.WithDescription("Sessions by backend and outcome"))
	if err != nil {
		slog.Debug("session counter unavailable", "error", err)
	}
	in.ttft, err = meter.Float64Histogram("relaychat.first_token_ms",
		metric.WithDescription("Time from submit to first delta"),
		metric.WithUnit("ms"))
	if err != nil {
		slog.Debug("first token histogram unavailable", "error", err)
	}
	return in
}

func (in *instruments) startSpan(ctx context.Context, id string, kind backend.Kind) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("session.backend", kind.String()),
	))
}

func (in *instruments) firstToken(kind backend.Kind, d time.Duration) {
	if in.ttft == nil {
		return
	}
	in.ttft.Record(context.Background(), float64(d.Microseconds())/1000,
		metric.WithAttributes(attribute.String("backend", kind.String())))
}

func (in *instruments) finish(span trace.Span, kind backend.Kind, outcome string) {
	if in.sessions != nil {
		in.sessions.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("backend", kind.String()),
			attribute.String("outcome", outcome),
		))
	}
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("session.outcome", outcome))
	if outcome == "failed" {
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}
