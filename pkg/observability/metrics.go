// Package observability provides client-side metrics for the compute-job
// client, exported in Prometheus format.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the client's metrics:
// - Traffic: submissions, uploads, downloads, polls
// - Errors: failed remote calls by error class
// - Latency: remote call duration
type Metrics struct {
	meter metric.Meter

	JobsSubmitted  metric.Int64Counter
	JobsDestroyed  metric.Int64Counter
	UploadsTotal   metric.Int64Counter
	DownloadsTotal metric.Int64Counter
	PollsTotal     metric.Int64Counter
	ErrorsTotal    metric.Int64Counter
	CallDuration   metric.Float64Histogram
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
// The returned handler serves the scrape endpoint.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("cwlclient")
	m := &Metrics{meter: meter}

	m.JobsSubmitted, err = meter.Int64Counter(
		"client_jobs_submitted_total",
		metric.WithDescription("Total number of jobs submitted to the service"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsDestroyed, err = meter.Int64Counter(
		"client_jobs_destroyed_total",
		metric.WithDescription("Total number of jobs destroyed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.UploadsTotal, err = meter.Int64Counter(
		"client_uploads_total",
		metric.WithDescription("Total number of input files uploaded"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DownloadsTotal, err = meter.Int64Counter(
		"client_downloads_total",
		metric.WithDescription("Total number of output files downloaded"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"client_state_polls_total",
		metric.WithDescription("Total number of job state polls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"client_errors_total",
		metric.WithDescription("Total number of failed remote calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CallDuration, err = meter.Float64Histogram(
		"client_call_duration_seconds",
		metric.WithDescription("Remote call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordJobSubmitted records a successful job submission.
func (m *Metrics) RecordJobSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.JobsSubmitted.Add(ctx, 1)
}

// RecordJobDestroyed records a job and its data being removed.
func (m *Metrics) RecordJobDestroyed(ctx context.Context) {
	if m == nil {
		return
	}
	m.JobsDestroyed.Add(ctx, 1)
}

// RecordUpload records one input file upload.
func (m *Metrics) RecordUpload(ctx context.Context) {
	if m == nil {
		return
	}
	m.UploadsTotal.Add(ctx, 1)
}

// RecordDownload records one output file download.
func (m *Metrics) RecordDownload(ctx context.Context) {
	if m == nil {
		return
	}
	m.DownloadsTotal.Add(ctx, 1)
}

// RecordPoll records one state poll with its result.
func (m *Metrics) RecordPoll(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.PollsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordError records a failed remote call.
func (m *Metrics) RecordError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordCall records the latency of one remote call.
func (m *Metrics) RecordCall(ctx context.Context, op string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CallDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("op", op)))
}
