package domain

// Reading is one observation extracted from a single line of the
// monitored process's output. Value is either a float64 or a string.
type Reading struct {
	MetricName  string `json:"metric_name"`
	Value       any    `json:"value"`
	TimestampMs int64  `json:"timestamp_ms"`
	RawLine     string `json:"raw_line,omitempty"`
}

// QueueEntry is a Reading plus delivery bookkeeping. Seq is assigned at
// enqueue time, strictly increasing within one queue instance, and
// survives restart. AttemptCount is in-memory only.
type QueueEntry struct {
	Seq          uint64  `json:"seq"`
	Reading      Reading `json:"reading"`
	AttemptCount int     `json:"-"`
	EnqueuedAtMs int64   `json:"enqueued_at_ms"`
}
