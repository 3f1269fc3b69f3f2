package telemetry

import (
	"context"

	"github.com/giobyte8/imgversions/internal/telemetry/metrics"
)

type Config struct {
	OtelEnabled          bool
	CollectorGrpcAddress string
}

type TelemetrySvc struct {
	metrics metrics.MetricsSvc
}

func NewTelemetrySvc(ctx context.Context, cfg Config) (*TelemetrySvc, error) {
	var metricsSvc metrics.MetricsSvc
	var err error

	if cfg.OtelEnabled {
		metricsSvc, err = metrics.NewOtelMetricsSvc(
			ctx,
			cfg.CollectorGrpcAddress,
		)
		if err != nil {
			return nil, err
		}
	} else {
		metricsSvc = metrics.NewNoopMetricsSvc()
	}

	return &TelemetrySvc{
		metrics: metricsSvc,
	}, nil
}

// NewNoopTelemetrySvc returns a service that discards every metric.
func NewNoopTelemetrySvc() *TelemetrySvc {
	return &TelemetrySvc{metrics: metrics.NewNoopMetricsSvc()}
}

func (t *TelemetrySvc) Metrics() metrics.MetricsSvc {
	return t.metrics
}

func (t *TelemetrySvc) Shutdown(ctx context.Context) error {
	return t.metrics.Shutdown(ctx)
}
