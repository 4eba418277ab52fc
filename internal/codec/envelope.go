// Package codec serializes delivery envelopes for the transport. The
// wire format is msgpack with a leading schema version field; fields
// may be added but never removed or repurposed.
package codec

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rd-openday18/pubsub/internal/domain"
)

var ErrMalformedEnvelope = errors.New("codec: malformed envelope")

// EncodeEntry builds the envelope for a queue entry and serializes it.
// sourceID identifies the publishing relay instance.
func EncodeEntry(e *domain.QueueEntry, sourceID string) ([]byte, error) {
	env := domain.Envelope{
		SchemaVersion: domain.EnvelopeSchemaVersion,
		Seq:           e.Seq,
		MessageID:     uuid.New().String(),
		SourceID:      sourceID,
		MetricName:    e.Reading.MetricName,
		Value:         e.Reading.Value,
		TimestampMs:   e.Reading.TimestampMs,
	}
	return msgpack.Marshal(&env)
}

// Decode parses and validates envelope bytes. A decode failure, an
// unknown schema version, or an empty metric name all count as
// malformed.
func Decode(data []byte) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.SchemaVersion < domain.EnvelopeSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrMalformedEnvelope, env.SchemaVersion)
	}
	if env.MetricName == "" {
		return nil, fmt.Errorf("%w: empty metric name", ErrMalformedEnvelope)
	}
	return &env, nil
}
