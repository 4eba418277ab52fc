package observability

import (
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rd-openday18/pubsub/internal/ports"
)

type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	parseErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_parse_errors_total",
		Help: "Lines dropped because they could not be parsed into a reading.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_total",
		Help: "Readings lost to queue capacity policies.",
	})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_published_total",
		Help: "Envelopes confirmed by the transport.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_publish_retries_total",
		Help: "Failed publish attempts that were retried.",
	})
	applied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reducer_applied_total",
		Help: "Envelopes merged into the system state.",
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reducer_stale_total",
		Help: "Duplicate or out-of-order envelopes ignored by the merge rule.",
	})
	malformed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reducer_malformed_total",
		Help: "Envelopes dropped because they could not be decoded.",
	})
	queuePending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queue_pending",
		Help: "Unacknowledged entries in the durable queue.",
	})
	queueBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queue_size_bytes",
		Help: "Size of the durable queue log on disk.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_publish_latency_seconds",
		Help:    "Latency of a confirmed publish attempt.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	prometheus.MustRegister(parseErrors, dropped, published, retries, applied, stale, malformed,
		queuePending, queueBytes, latency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"relay_parse_errors_total":    parseErrors,
			"relay_dropped_total":         dropped,
			"relay_published_total":       published,
			"relay_publish_retries_total": retries,
			"reducer_applied_total":       applied,
			"reducer_stale_total":         stale,
			"reducer_malformed_total":     malformed,
		},
		gauges: map[string]prometheus.Gauge{
			"relay_queue_pending":    queuePending,
			"relay_queue_size_bytes": queueBytes,
		},
		histos: map[string]prometheus.Observer{
			"relay_publish_latency_seconds": latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	log.Printf("WARN: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(rawLine string, err error) {
	p.IncCounter("relay_parse_errors_total", 1)
	if err != nil {
		log.Printf("parse drop line=%q err=%v", rawLine, err)
	}
}

func formatFields(fields []ports.Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

var _ ports.Observability = (*PromObs)(nil)
