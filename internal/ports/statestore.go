package ports

import (
	"context"

	"github.com/rd-openday18/pubsub/internal/domain"
)

// StateStore persists the reducer's materialized view so external
// readers observe the latest state. The reducer is the only writer.
type StateStore interface {
	// WriteMetric persists the record for a single metric after a merge.
	WriteMetric(ctx context.Context, name string, st domain.MetricState) error

	// WriteSnapshot persists the full state in one operation.
	WriteSnapshot(ctx context.Context, state domain.SystemState) error

	// ReadSnapshot loads the persisted state; an empty store yields an
	// empty (non-nil) SystemState.
	ReadSnapshot(ctx context.Context) (domain.SystemState, error)

	Close() error
}
