package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

var metricPrefix = []byte("m/")

// BadgerStore is an embedded single-node alternative to Redis: one
// key per metric under m/, msgpack-encoded. An empty dir runs Badger
// in memory, which tests use.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func metricKey(name string) []byte {
	return append(append([]byte(nil), metricPrefix...), name...)
}

func (s *BadgerStore) WriteMetric(_ context.Context, name string, st domain.MetricState) error {
	b, err := msgpack.Marshal(&st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metricKey(name), b)
	})
}

func (s *BadgerStore) WriteSnapshot(_ context.Context, state domain.SystemState) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for name, st := range state {
		b, err := msgpack.Marshal(&st)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		if err := wb.Set(metricKey(name), b); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) ReadSnapshot(_ context.Context) (domain.SystemState, error) {
	out := make(domain.SystemState)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metricPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(metricPrefix):])
			if err := item.Value(func(v []byte) error {
				var st domain.MetricState
				if err := msgpack.Unmarshal(v, &st); err != nil {
					return fmt.Errorf("unmarshal state for %q: %w", name, err)
				}
				out[name] = st
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

var _ ports.StateStore = (*BadgerStore)(nil)
