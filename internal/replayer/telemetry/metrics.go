package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics is the set of measurements recorded by a replayer.
type Metrics struct {
	// replayCycles counts snapshot scan cycles started.
	replayCycles metric.Int64Counter
	// snapshotsSynced counts mirror snapshots fully synced to the local image.
	snapshotsSynced metric.Int64Counter
	// copiedObjects counts data objects copied during image copy.
	copiedObjects metric.Int64Counter
	// replayErrors counts replays finished with an error recorded.
	replayErrors metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (m *Metrics, err error) {
	m = &Metrics{}
	m.replayCycles, err = meter.Int64Counter(
		"replayer.cycles",
		metric.WithDescription("Number of snapshot scan cycles started"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}
	m.snapshotsSynced, err = meter.Int64Counter(
		"replayer.snapshots.synced",
		metric.WithDescription("Number of mirror snapshots fully synced to the local image"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}
	m.copiedObjects, err = meter.Int64Counter(
		"replayer.objects.copied",
		metric.WithDescription("Number of data objects copied from the remote image"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, err
	}
	m.replayErrors, err = meter.Int64Counter(
		"replayer.errors",
		metric.WithDescription("Number of replays finished with a recorded error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Nop returns metrics recorded against a no-op meter.
func Nop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("snapmirror"))
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) ReplayCycle(ctx context.Context) {
	m.replayCycles.Add(ctx, 1)
}

func (m *Metrics) SnapshotSynced(ctx context.Context) {
	m.snapshotsSynced.Add(ctx, 1)
}

func (m *Metrics) ObjectsCopied(ctx context.Context, n int64) {
	m.copiedObjects.Add(ctx, n)
}

func (m *Metrics) ReplayError(ctx context.Context) {
	m.replayErrors.Add(ctx, 1)
}
