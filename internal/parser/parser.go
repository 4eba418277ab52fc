// Package parser turns raw text lines from the monitored process into
// typed readings. The expected shape is whitespace-separated
// key=value tokens, e.g. "temp=42.5 ts=1000": the first token that is
// not "ts" names the metric, the optional ts token carries the capture
// timestamp in epoch milliseconds. Anything else yields no reading.
package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/rd-openday18/pubsub/internal/domain"
)

// Parser extracts readings from individual lines. The zero value uses
// time.Now for lines without a ts token.
type Parser struct {
	// Now supplies the fallback timestamp; nil means time.Now.
	Now func() time.Time
}

// Parse returns the reading extracted from line, or ok=false when the
// line is blank or malformed. It never panics and never returns a
// partially populated reading.
func (p *Parser) Parse(line string) (*domain.Reading, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false
	}

	var (
		metric string
		value  any
		ts     int64
		hasTS  bool
	)

	for _, tok := range fields {
		key, raw, found := strings.Cut(tok, "=")
		if !found || key == "" {
			return nil, false
		}
		if key == "ts" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, false
			}
			ts, hasTS = n, true
			continue
		}
		if metric != "" {
			// one observation per line
			return nil, false
		}
		metric = key
		if raw == "" {
			return nil, false
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			value = f
		} else {
			value = raw
		}
	}

	if metric == "" {
		return nil, false
	}
	if !hasTS {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		ts = now().UnixMilli()
	}

	return &domain.Reading{
		MetricName:  metric,
		Value:       value,
		TimestampMs: ts,
		RawLine:     line,
	}, true
}
