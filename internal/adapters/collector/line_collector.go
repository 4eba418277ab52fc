// Package collector provides reading sources for the ingest pipeline:
// a line collector that parses the monitored process's output stream,
// and a simulator that generates synthetic readings.
package collector

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/parser"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// LineCollector reads the unbounded line stream from r, parses each
// line, and emits readings. Malformed lines are counted and skipped;
// the stream ending is a normal stop, not an error.
type LineCollector struct {
	r      io.Reader
	parser *parser.Parser
	obs    ports.Observability

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewLineCollector(r io.Reader, obs ports.Observability) *LineCollector {
	return &LineCollector{
		r:      r,
		parser: &parser.Parser{},
		obs:    obs,
	}
}

func (c *LineCollector) Start(out chan<- *domain.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("line collector already started")
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go c.scan(out)
	return nil
}

func (c *LineCollector) scan(out chan<- *domain.Reading) {
	defer close(c.doneCh)
	defer close(out)

	scanner := bufio.NewScanner(c.r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		select {
		case <-c.stopCh:
			return
		default:
		}

		r, ok := c.parser.Parse(scanner.Text())
		if !ok {
			if c.obs != nil {
				c.obs.RecordDrop(scanner.Text(), nil)
			}
			continue
		}

		select {
		case <-c.stopCh:
			return
		case out <- r:
		}
	}
	if err := scanner.Err(); err != nil && c.obs != nil {
		c.obs.LogError("line_scan_failed", err)
	}
}

// Stop signals the scan loop and waits briefly for it to exit. A read
// blocked on a stream that never closes is abandoned rather than
// wedging shutdown.
func (c *LineCollector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	close(c.stopCh)

	select {
	case <-c.doneCh:
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}

var _ ports.Collector = (*LineCollector)(nil)
