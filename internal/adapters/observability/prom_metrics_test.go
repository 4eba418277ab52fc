package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs()

	obs.IncCounter("relay_published_total", 5)
	if got := testutil.ToFloat64(obs.counters["relay_published_total"]); got != 5 {
		t.Fatalf("expected published counter 5, got %f", got)
	}

	obs.IncCounter("reducer_stale_total", 2)
	if got := testutil.ToFloat64(obs.counters["reducer_stale_total"]); got != 2 {
		t.Fatalf("expected stale counter 2, got %f", got)
	}

	obs.SetGauge("relay_queue_pending", 42)
	if got := testutil.ToFloat64(obs.gauges["relay_queue_pending"]); got != 42 {
		t.Fatalf("expected queue gauge 42, got %f", got)
	}

	obs.ObserveLatency("relay_publish_latency_seconds", 0.5)
	hCollector := obs.histos["relay_publish_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDrop("garbage line", nil)
	if got := testutil.ToFloat64(obs.counters["relay_parse_errors_total"]); got != 1 {
		t.Fatalf("expected parse error counter 1, got %f", got)
	}
}
