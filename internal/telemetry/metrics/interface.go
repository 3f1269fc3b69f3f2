package metrics

import (
	"context"
)

// Custom type to represent a metric name,
// providing a type-safe way to handle metric names.
type MetricName string

const (
	VersionsGenRequestReceived MetricName = "versions.gen_request.received"
	VersionsDelRequestReceived MetricName = "versions.del_request.received"
	VersionCreated             MetricName = "versions.created"
	VersionFailed              MetricName = "versions.failed"
	ThumbCreated               MetricName = "thumbnail.created"
)

type MetricsSvc interface {
	Increment(metric MetricName)
	IncrementWAttrs(metric MetricName, attrs map[string]string)
	Shutdown(ctx context.Context) error
}
