package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rd-openday18/pubsub/internal/adapters/collector"
	"github.com/rd-openday18/pubsub/internal/adapters/observability"
	"github.com/rd-openday18/pubsub/internal/adapters/queue"
	"github.com/rd-openday18/pubsub/internal/adapters/transport/gcloud"
	"github.com/rd-openday18/pubsub/internal/app/pipeline"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// PublisherOption customizes the dependencies used by PublisherRuntime.
type PublisherOption func(*publisherOverrides)

type publisherOverrides struct {
	collector     Collector
	queue         DurableQueue
	publisher     Publisher
	observability Observability
	sourceID      string
}

// WithCollector injects a custom reading source (files, sockets, simulators, etc.).
func WithCollector(col Collector) PublisherOption {
	return func(o *publisherOverrides) {
		o.collector = col
	}
}

// WithQueue injects a custom queue implementation or reuses an existing instance.
func WithQueue(q DurableQueue) PublisherOption {
	return func(o *publisherOverrides) {
		o.queue = q
	}
}

// WithPublisher points the pump at any transport instead of Google Cloud Pub/Sub.
func WithPublisher(p Publisher) PublisherOption {
	return func(o *publisherOverrides) {
		o.publisher = p
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) PublisherOption {
	return func(o *publisherOverrides) {
		o.observability = obs
	}
}

// WithSourceID fixes the source id stamped on every envelope. The
// default is a random UUID per process.
func WithSourceID(id string) PublisherOption {
	return func(o *publisherOverrides) {
		o.sourceID = id
	}
}

// PublisherRuntime wires up the collector → durable queue → pump
// pipeline and exposes simple lifecycle hooks for embedding the relay
// inside any Go service.
type PublisherRuntime struct {
	cfg         *Config
	policy      ports.Policy
	obs         ports.Observability
	queue       ports.DurableQueue
	collector   ports.Collector
	publisher   ports.Publisher
	sourceID     string
	metricsSrv   *http.Server
	gaugeStopCh  chan struct{}
	ingestCancel context.CancelFunc
	ingestDoneCh <-chan struct{}
	pumpCancel   context.CancelFunc
	pumpDoneCh   chan struct{}
}

// NewPublisherRuntime bootstraps the default adapters (stdin line
// collector, file queue, Pub/Sub publisher, Prometheus observability).
// Callers can use PublisherOption values to override any dependency.
func NewPublisherRuntime(ctx context.Context, cfg *Config, opts ...PublisherOption) (*PublisherRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides publisherOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	q := overrides.queue
	if q == nil {
		qopts := queue.Options{
			MaxLen:       cfg.Policy.MaxQueueLen,
			MaxSizeBytes: cfg.Policy.MaxQueueSizeBytes,
			OnFull:       cfg.Policy.OnQueueFull,
		}
		if cfg.Queue.Dir != "" {
			var err error
			q, err = queue.NewFileQueue(cfg.Queue.Dir, qopts)
			if err != nil {
				return nil, err
			}
		} else {
			obs.LogWarn("durability_degraded",
				ports.Field{Key: "reason", Value: "no queue.dir configured, buffering in memory only"})
			q = queue.NewMemQueue(qopts)
		}
	}
	if q == nil {
		return nil, fmt.Errorf("durable queue is nil")
	}

	col := overrides.collector
	if col == nil {
		col = collector.NewLineCollector(os.Stdin, obs)
	}

	pub := overrides.publisher
	if pub == nil {
		var err error
		pub, err = gcloud.NewPublisher(ctx, cfg.Transport)
		if err != nil {
			return nil, err
		}
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is nil")
	}

	sourceID := overrides.sourceID
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	return &PublisherRuntime{
		cfg:       cfg,
		policy:    cfg.Policy,
		obs:       obs,
		queue:     q,
		collector: col,
		publisher: pub,
		sourceID:  sourceID,
	}, nil
}

// SourceID returns the id stamped on every envelope this runtime publishes.
func (p *PublisherRuntime) SourceID() string { return p.sourceID }

// QueueStats exposes the underlying queue's counters.
func (p *PublisherRuntime) QueueStats() QueueStats { return p.queue.Stats() }

// Start begins the ingest pipeline and the publisher pump and launches
// the observability stack. It returns immediately; call Run to block
// on a context instead.
func (p *PublisherRuntime) Start() error {
	if p == nil {
		return fmt.Errorf("publisher runtime is nil")
	}
	ingestCtx, ingestCancel := context.WithCancel(context.Background())
	done, err := pipeline.RunIngestPipeline(ingestCtx, p.collector, p.queue, p.policy, p.obs)
	if err != nil {
		ingestCancel()
		return err
	}
	p.ingestCancel = ingestCancel
	p.ingestDoneCh = done

	pumpCtx, cancel := context.WithCancel(context.Background())
	p.pumpCancel = cancel
	p.pumpDoneCh = make(chan struct{})
	go func() {
		_ = pipeline.RunPublisherPump(pumpCtx, p.queue, p.publisher, p.sourceID, p.policy, p.obs)
		close(p.pumpDoneCh)
	}()

	p.startMetrics()
	return nil
}

// Run starts the runtime and blocks until the provided context is
// cancelled, then attempts a graceful shutdown.
func (p *PublisherRuntime) Run(ctx context.Context) error {
	if err := p.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Shutdown(shutdownCtx)
}

// Shutdown stops the collector, lets the in-flight publish finish,
// and closes the queue so unacknowledged entries stay durable.
func (p *PublisherRuntime) Shutdown(ctx context.Context) error {
	var errs []error

	if p.gaugeStopCh != nil {
		close(p.gaugeStopCh)
	}

	if p.metricsSrv != nil {
		if err := p.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if p.collector != nil {
		if err := p.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.ingestCancel != nil {
		p.ingestCancel()
		select {
		case <-p.ingestDoneCh:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	if p.pumpCancel != nil {
		p.pumpCancel()
		select {
		case <-p.pumpDoneCh:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.queue != nil {
		if err := p.queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *PublisherRuntime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	p.metricsSrv = &http.Server{
		Addr:    p.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := p.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	p.gaugeStopCh = make(chan struct{})
	go p.recordQueueGauges(p.gaugeStopCh, time.Second)
}

func (p *PublisherRuntime) recordQueueGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := p.queue.Stats()
			p.obs.SetGauge("relay_queue_pending", float64(stats.Pending))
			p.obs.SetGauge("relay_queue_size_bytes", float64(stats.SizeBytes))
		}
	}
}
