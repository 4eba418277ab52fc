package collector

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

type SimulatorConfig struct {
	Metrics  []string      `yaml:"metrics"`
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"`
}

func (c *SimulatorConfig) ApplyDefaults() {
	if len(c.Metrics) == 0 {
		c.Metrics = []string{"temp", "rssi"}
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Simulator emits one synthetic reading per interval, cycling through
// the configured metrics with a random walk per metric. Useful for
// soak tests and demos when no monitored process is attached.
type Simulator struct {
	cfg SimulatorConfig

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	cfg.ApplyDefaults()
	return &Simulator{cfg: cfg}
}

func (s *Simulator) Start(out chan<- *domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("simulator already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(out)
	return nil
}

func (s *Simulator) run(out chan<- *domain.Reading) {
	defer close(s.doneCh)
	defer close(out)

	rng := rand.New(rand.NewSource(s.cfg.Seed))
	values := make(map[string]float64, len(s.cfg.Metrics))
	for _, m := range s.cfg.Metrics {
		values[m] = rng.Float64() * 100
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			metric := s.cfg.Metrics[i%len(s.cfg.Metrics)]
			i++
			values[metric] += rng.NormFloat64()
			r := &domain.Reading{
				MetricName:  metric,
				Value:       values[metric],
				TimestampMs: time.Now().UnixMilli(),
				RawLine:     fmt.Sprintf("%s=%.3f (simulated)", metric, values[metric]),
			}
			select {
			case <-s.stopCh:
				return
			case out <- r:
			}
		}
	}
}

func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	close(s.stopCh)
	<-s.doneCh
	return nil
}

var _ ports.Collector = (*Simulator)(nil)
