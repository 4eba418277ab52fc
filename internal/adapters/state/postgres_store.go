package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// PostgresStore keeps one row per metric. The merge guard lives in the
// upsert itself: a row is only overwritten by a higher sequence id, so
// replaying the same envelope against the store is harmless.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "system_state"
	}
	return &PostgresStore{db: db, table: table}
}

// Init creates the state table when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		metric_name TEXT PRIMARY KEY,
		last_value JSONB NOT NULL,
		last_timestamp_ms BIGINT NOT NULL,
		last_seq BIGINT NOT NULL,
		source_id TEXT NOT NULL DEFAULT ''
	)`, s.table))
	return err
}

func (s *PostgresStore) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (metric_name, last_value, last_timestamp_ms, last_seq, source_id)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (metric_name) DO UPDATE
		SET last_value = EXCLUDED.last_value,
		    last_timestamp_ms = EXCLUDED.last_timestamp_ms,
		    last_seq = EXCLUDED.last_seq,
		    source_id = EXCLUDED.source_id
		WHERE %s.last_seq < EXCLUDED.last_seq`, s.table, s.table)
}

func (s *PostgresStore) WriteMetric(ctx context.Context, name string, st domain.MetricState) error {
	val, err := json.Marshal(st.LastValue)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.upsertSQL(), name, val, st.LastTimestampMs, int64(st.LastSeq), st.SourceID)
	return err
}

func (s *PostgresStore) WriteSnapshot(ctx context.Context, state domain.SystemState) error {
	if len(state) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (metric_name, last_value, last_timestamp_ms, last_seq, source_id) VALUES ", s.table)

	args := make([]any, 0, len(state)*5)
	first := true
	for name, st := range state {
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5)
		val, err := json.Marshal(st.LastValue)
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		args = append(args, name, val, st.LastTimestampMs, int64(st.LastSeq), st.SourceID)
	}
	fmt.Fprintf(&b, ` ON CONFLICT (metric_name) DO UPDATE
		SET last_value = EXCLUDED.last_value,
		    last_timestamp_ms = EXCLUDED.last_timestamp_ms,
		    last_seq = EXCLUDED.last_seq,
		    source_id = EXCLUDED.source_id
		WHERE %s.last_seq < EXCLUDED.last_seq`, s.table)

	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return err
}

func (s *PostgresStore) ReadSnapshot(ctx context.Context) (domain.SystemState, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT metric_name, last_value, last_timestamp_ms, last_seq, source_id FROM %s", s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(domain.SystemState)
	for rows.Next() {
		var (
			name   string
			rawVal []byte
			ts     int64
			seq    int64
			source string
		)
		if err := rows.Scan(&name, &rawVal, &ts, &seq, &source); err != nil {
			return nil, err
		}
		var val any
		if err := json.Unmarshal(rawVal, &val); err != nil {
			return nil, fmt.Errorf("unmarshal value for %q: %w", name, err)
		}
		out[name] = domain.MetricState{
			LastValue:       val,
			LastTimestampMs: ts,
			LastSeq:         uint64(seq),
			SourceID:        source,
		}
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }

var _ ports.StateStore = (*PostgresStore)(nil)
