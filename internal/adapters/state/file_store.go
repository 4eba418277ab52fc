package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// FileStore persists the whole state as one zstd-compressed msgpack
// snapshot, written atomically via rename. It keeps a cached copy in
// memory so WriteMetric can rewrite the snapshot without a read.
type FileStore struct {
	mu      sync.Mutex
	path    string
	cached  domain.SystemState
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewFileStore(path string) (*FileStore, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	s := &FileStore{path: path, encoder: enc, decoder: dec}

	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cached = loaded
	return s, nil
}

func (s *FileStore) load() (domain.SystemState, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(domain.SystemState), nil
		}
		return nil, err
	}
	packed, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var state domain.SystemState
	if err := msgpack.Unmarshal(packed, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if state == nil {
		state = make(domain.SystemState)
	}
	return state, nil
}

func (s *FileStore) writeLocked() error {
	packed, err := msgpack.Marshal(s.cached)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	raw := s.encoder.EncodeAll(packed, nil)

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) WriteMetric(_ context.Context, name string, st domain.MetricState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[name] = st
	return s.writeLocked()
}

func (s *FileStore) WriteSnapshot(_ context.Context, state domain.SystemState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = state.Clone()
	return s.writeLocked()
}

func (s *FileStore) ReadSnapshot(_ context.Context) (domain.SystemState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached.Clone(), nil
}

func (s *FileStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

var _ ports.StateStore = (*FileStore)(nil)
