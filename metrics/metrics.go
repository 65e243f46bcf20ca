// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics instruments the VFS Request Handler's operations:
// per-operation counts and latency, error counts by operation, and bytes
// moved in each direction, trimmed to the dimensions this engine's
// operations can actually emit.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// OpKey annotates the engine operation a measurement belongs to.
	OpKey = "fs_op"
	// DirectionKey annotates a byte count as "read" or "write".
	DirectionKey = "direction"
)

// Handle is the capability set the engine depends on to record
// operational metrics; a NoopHandle satisfies it with no side effects.
type Handle interface {
	// RecordOp records one invocation of op, its latency, and whether it
	// returned err (nil counts as success).
	RecordOp(ctx context.Context, op string, dur time.Duration, err error)
	// RecordBytes records n bytes moved in the given direction ("read" or
	// "write").
	RecordBytes(ctx context.Context, direction string, n int64)
}

var meter = otel.Meter("sftpfs/engine")

func loadOrStoreAttributeOption(mp *sync.Map, key string, attrs ...attribute.KeyValue) metric.MeasurementOption {
	if v, ok := mp.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	v, _ := mp.LoadOrStore(key, metric.WithAttributeSet(attribute.NewSet(attrs...)))
	return v.(metric.MeasurementOption)
}

// otelHandle is the live Handle backed by an OpenTelemetry meter, exported
// through whatever MeterProvider has been installed globally (typically the
// Prometheus exporter wired in cmd.runMount).
type otelHandle struct {
	opCount      metric.Int64Counter
	opErrorCount metric.Int64Counter
	opLatency    metric.Float64Histogram
	byteCount    metric.Int64Counter

	opAttrs        sync.Map
	directionAttrs sync.Map
}

// NewOTelHandle constructs a Handle recording to the process-wide
// OpenTelemetry meter. Call it after installing a MeterProvider (see
// InstallPrometheusProvider) so the instruments it creates are actually exported.
func NewOTelHandle() (Handle, error) {
	opCount, err := meter.Int64Counter("fs_op_total", metric.WithDescription("Cumulative number of VFS operations processed."))
	if err != nil {
		return nil, err
	}
	opErrorCount, err := meter.Int64Counter("fs_op_error_total", metric.WithDescription("Cumulative number of VFS operations that returned an error."))
	if err != nil {
		return nil, err
	}
	opLatency, err := meter.Float64Histogram("fs_op_duration_seconds", metric.WithDescription("Distribution of VFS operation latencies."), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	byteCount, err := meter.Int64Counter("fs_bytes_total", metric.WithDescription("Cumulative bytes moved to or from the remote backing directory."), metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &otelHandle{
		opCount:      opCount,
		opErrorCount: opErrorCount,
		opLatency:    opLatency,
		byteCount:    byteCount,
	}, nil
}

func (h *otelHandle) RecordOp(ctx context.Context, op string, dur time.Duration, err error) {
	opOpt := loadOrStoreAttributeOption(&h.opAttrs, op, attribute.String(OpKey, op))
	h.opCount.Add(ctx, 1, opOpt)
	h.opLatency.Record(ctx, dur.Seconds(), opOpt)
	if err != nil {
		h.opErrorCount.Add(ctx, 1, opOpt)
	}
}

func (h *otelHandle) RecordBytes(ctx context.Context, direction string, n int64) {
	dirOpt := loadOrStoreAttributeOption(&h.directionAttrs, direction, attribute.String(DirectionKey, direction))
	h.byteCount.Add(ctx, n, dirOpt)
}

// NoopHandle is the default Handle installed when metrics are disabled.
type NoopHandle struct{}

func (NoopHandle) RecordOp(context.Context, string, time.Duration, error) {}
func (NoopHandle) RecordBytes(context.Context, string, int64)             {}
