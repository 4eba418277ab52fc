package domain

// EnvelopeSchemaVersion is the current wire schema. Consumers accept
// any version >= 1; new fields may only be added, never repurposed.
const EnvelopeSchemaVersion = 1

// Envelope is the wire-level unit sent over the pub/sub transport.
type Envelope struct {
	SchemaVersion int    `msgpack:"v"`
	Seq           uint64 `msgpack:"seq"`
	MessageID     string `msgpack:"message_id"`
	SourceID      string `msgpack:"source_id"`
	MetricName    string `msgpack:"metric_name"`
	Value         any    `msgpack:"value"`
	TimestampMs   int64  `msgpack:"timestamp_ms"`
}
