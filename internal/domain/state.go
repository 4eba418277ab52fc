package domain

// MetricState is the latest observed record for one metric.
type MetricState struct {
	LastValue       any    `json:"last_value" msgpack:"last_value"`
	LastTimestampMs int64  `json:"last_timestamp_ms" msgpack:"last_timestamp_ms"`
	LastSeq         uint64 `json:"last_seq" msgpack:"last_seq"`
	SourceID        string `json:"source_id,omitempty" msgpack:"source_id,omitempty"`
}

// SystemState maps metric name to its latest state. For every metric
// the stored record reflects the envelope with the highest Seq ever
// observed; duplicates and reordering never regress it.
type SystemState map[string]MetricState

// Clone returns an independent copy safe to hand to external readers.
func (s SystemState) Clone() SystemState {
	out := make(SystemState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
