package batch

import (
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/akaszubski/autonomous-dev/internal/telemetry"
)

// batchMetrics holds lazily-initialized OTel instruments for batch runs.
var batchMetrics struct {
	itemsDone   metric.Int64Counter
	itemsFailed metric.Int64Counter
	duration    metric.Float64Histogram
}

var batchMetricsOnce sync.Once

func initBatchMetrics() {
	m := telemetry.Meter("github.com/akaszubski/autonomous-dev/batch")
	batchMetrics.itemsDone, _ = m.Int64Counter("autodev.batch.items_done",
		metric.WithDescription("Batch items completed successfully"),
		metric.WithUnit("{item}"),
	)
	batchMetrics.itemsFailed, _ = m.Int64Counter("autodev.batch.items_failed",
		metric.WithDescription("Batch item attempts that failed"),
		metric.WithUnit("{item}"),
	)
	batchMetrics.duration, _ = m.Float64Histogram("autodev.batch.item.duration",
		metric.WithDescription("Batch item attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}
