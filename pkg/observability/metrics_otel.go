package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMeters holds OpenTelemetry instruments mirroring the key business
// counters, exported over OTLP when tracing is enabled. Prometheus remains
// the primary metrics surface; these exist for collectors that consume OTLP
// only.
type OTelMeters struct {
	PermissionChecks metric.Int64Counter
	ContentMutations metric.Int64Counter
	VersionSnapshots metric.Int64Counter
}

// NewOTelMeters creates the OTLP-exported instruments
func NewOTelMeters() (*OTelMeters, error) {
	meter := otel.Meter("campuscms")

	permissionChecks, err := meter.Int64Counter("campuscms.permission_checks",
		metric.WithDescription("Permission checks evaluated"))
	if err != nil {
		return nil, fmt.Errorf("failed to create permission check counter: %w", err)
	}

	contentMutations, err := meter.Int64Counter("campuscms.content_mutations",
		metric.WithDescription("Content create/update/delete operations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create content mutation counter: %w", err)
	}

	versionSnapshots, err := meter.Int64Counter("campuscms.version_snapshots",
		metric.WithDescription("Content version snapshots created"))
	if err != nil {
		return nil, fmt.Errorf("failed to create version snapshot counter: %w", err)
	}

	return &OTelMeters{
		PermissionChecks: permissionChecks,
		ContentMutations: contentMutations,
		VersionSnapshots: versionSnapshots,
	}, nil
}

// RecordPermissionCheck records a permission check outcome
func (m *OTelMeters) RecordPermissionCheck(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	m.PermissionChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}

// RecordContentMutation records a content mutation by type and operation
func (m *OTelMeters) RecordContentMutation(ctx context.Context, contentType, operation string) {
	if m == nil {
		return
	}
	m.ContentMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("content_type", contentType),
		attribute.String("operation", operation),
	))
}

// RecordVersionSnapshot records a content version snapshot
func (m *OTelMeters) RecordVersionSnapshot(ctx context.Context) {
	if m == nil {
		return
	}
	m.VersionSnapshots.Add(ctx, 1)
}
