package consumer

import (
	"context"

	"github.com/giobyte8/imgversions/internal/models"
)

// MessageConsumer feeds versions requests from a broker to a
// VersionsProcessor until stopped.
type MessageConsumer interface {
	Start(ctx context.Context) error

	Stop()
}

// VersionsProcessor handles decoded versions requests.
type VersionsProcessor interface {
	GenerateVersions(ctx context.Context, req models.VersionsRequest) error
	DeleteVersions(ctx context.Context, req models.VersionsRequest) error
}
