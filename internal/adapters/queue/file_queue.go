package queue

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// ErrQueueFull is re-exported for callers of this package.
var ErrQueueFull = ports.ErrQueueFull

const recordHeaderLen = 12

// Options bound the queue. Zero values mean unbounded; OnFull selects
// what Enqueue does at capacity: "reject" (and "block", which the
// caller implements by retrying) returns ErrQueueFull, "drop_oldest"
// evicts the oldest pending entry to make room.
type Options struct {
	MaxLen       int
	MaxSizeBytes int64
	OnFull       string

	// CompactEvery triggers a log rewrite once this many bytes of
	// acknowledged records accumulate. <=0 uses the default.
	CompactEvery int64

	// SyncInterval is how often the log is fsynced. <=0 uses the default.
	SyncInterval time.Duration
}

const (
	defaultCompactEvery = 4 << 20
	defaultSyncInterval = time.Second
)

// FileQueue is the durable queue: an append-only record file plus a
// small meta file holding the acknowledged watermark and the highest
// issued sequence id. Each record is
// [8 bytes seq][4 bytes len][len bytes json]. A partial tail record
// left by an unclean shutdown is truncated on open, not fatal.
type FileQueue struct {
	mu       sync.Mutex
	path     string
	metaPath string
	file     *os.File
	writer   *bufio.Writer
	opts     Options
	dropped  func(seq uint64)

	nextSeq    uint64
	ackedUpTo  uint64
	ackedAbove map[uint64]struct{}
	pending    []*domain.QueueEntry
	index      map[uint64]*domain.QueueEntry
	recordLen  map[uint64]int64
	sizeBytes  int64
	ackedBytes int64

	syncTicker *time.Ticker
	syncDone   chan struct{}
}

type record struct {
	Reading      domain.Reading `json:"reading"`
	EnqueuedAtMs int64          `json:"enqueued_at_ms"`
}

// NewFileQueue opens (or creates) the queue under dir and replays any
// unacknowledged entries left by a previous run.
func NewFileQueue(dir string, opts Options) (*FileQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "queue.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if opts.CompactEvery <= 0 {
		opts.CompactEvery = defaultCompactEvery
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = defaultSyncInterval
	}

	q := &FileQueue{
		path:       path,
		metaPath:   filepath.Join(dir, "queue.meta"),
		file:       f,
		writer:     bufio.NewWriterSize(f, 1<<20),
		opts:       opts,
		ackedAbove: make(map[uint64]struct{}),
		index:      make(map[uint64]*domain.QueueEntry),
		recordLen:  make(map[uint64]int64),
	}
	if err := q.bootstrap(); err != nil {
		f.Close()
		return nil, err
	}

	q.syncTicker = time.NewTicker(opts.SyncInterval)
	q.syncDone = make(chan struct{})
	go q.syncLoop()
	return q, nil
}

// OnDrop installs a callback invoked when drop_oldest evicts an entry.
func (q *FileQueue) OnDrop(fn func(seq uint64)) {
	q.mu.Lock()
	q.dropped = fn
	q.mu.Unlock()
}

func (q *FileQueue) bootstrap() error {
	if err := q.loadMeta(); err != nil {
		return err
	}
	if err := q.scanExisting(); err != nil {
		return err
	}
	if q.nextSeq < q.ackedUpTo {
		q.nextSeq = q.ackedUpTo
	}
	_, err := q.file.Seek(0, io.SeekEnd)
	return err
}

func (q *FileQueue) scanExisting() error {
	stat, err := os.Stat(q.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(q.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var offset int64

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("queue scan header: %w", err)
		}
		seq := binary.BigEndian.Uint64(hdr[0:8])
		length := binary.BigEndian.Uint32(hdr[8:12])

		body := make([]byte, length)
		if _, err := io.ReadFull(reader, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("queue scan body: %w", err)
		}
		recLen := int64(recordHeaderLen) + int64(length)
		offset += recLen

		if seq > q.nextSeq {
			q.nextSeq = seq
		}
		if seq <= q.ackedUpTo {
			q.ackedBytes += recLen
			continue
		}

		var rec record
		if err := json.Unmarshal(body, &rec); err != nil {
			// unreadable record from a torn write; skip it
			q.ackedBytes += recLen
			continue
		}
		entry := &domain.QueueEntry{
			Seq:          seq,
			Reading:      rec.Reading,
			EnqueuedAtMs: rec.EnqueuedAtMs,
		}
		q.pending = append(q.pending, entry)
		q.index[seq] = entry
		q.recordLen[seq] = recLen
	}

	if err := q.file.Truncate(offset); err != nil {
		return err
	}
	q.sizeBytes = offset
	return nil
}

func (q *FileQueue) loadMeta() error {
	data, err := os.ReadFile(q.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return nil
	}
	acked, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("queue meta parse: %w", err)
	}
	q.ackedUpTo = acked
	if len(fields) > 1 {
		// compaction drops records acknowledged above the watermark,
		// so their ids exist nowhere but here; without this an id
		// could be issued twice after a restart
		next, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("queue meta parse: %w", err)
		}
		if next > q.nextSeq {
			q.nextSeq = next
		}
	}
	return nil
}

func (q *FileQueue) Enqueue(r *domain.Reading) (*domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.atCapacityLocked() {
		if q.opts.OnFull != "drop_oldest" {
			return nil, ErrQueueFull
		}
		if !q.evictOldestLocked() {
			return nil, ErrQueueFull
		}
	}

	seq := q.nextSeq + 1
	entry := &domain.QueueEntry{
		Seq:          seq,
		Reading:      *r,
		EnqueuedAtMs: time.Now().UnixMilli(),
	}

	body, err := json.Marshal(record{Reading: entry.Reading, EnqueuedAtMs: entry.EnqueuedAtMs})
	if err != nil {
		return nil, err
	}

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], seq)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))

	if _, err := q.writer.Write(hdr[:]); err != nil {
		return nil, err
	}
	if _, err := q.writer.Write(body); err != nil {
		return nil, err
	}
	// the entry must be on its way to disk before Enqueue returns
	if err := q.writer.Flush(); err != nil {
		return nil, err
	}

	q.nextSeq = seq
	recLen := int64(recordHeaderLen) + int64(len(body))
	q.sizeBytes += recLen
	q.pending = append(q.pending, entry)
	q.index[seq] = entry
	q.recordLen[seq] = recLen
	return entry, nil
}

func (q *FileQueue) atCapacityLocked() bool {
	if q.opts.MaxLen > 0 && len(q.pending) >= q.opts.MaxLen {
		return true
	}
	if q.opts.MaxSizeBytes > 0 && q.sizeBytes-q.ackedBytes >= q.opts.MaxSizeBytes {
		return true
	}
	return false
}

func (q *FileQueue) evictOldestLocked() bool {
	if len(q.pending) == 0 {
		return false
	}
	oldest := q.pending[0]
	q.removeLocked(oldest.Seq)
	if q.dropped != nil {
		q.dropped(oldest.Seq)
	}
	return true
}

func (q *FileQueue) PeekBatch(max int) ([]*domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	if max <= 0 || max > len(q.pending) {
		max = len(q.pending)
	}
	out := make([]*domain.QueueEntry, max)
	copy(out, q.pending[:max])
	return out, nil
}

func (q *FileQueue) Acknowledge(seq uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[seq]; !ok {
		return nil
	}
	q.removeLocked(seq)
	if err := q.persistMetaLocked(); err != nil {
		return err
	}
	if q.ackedBytes >= q.opts.CompactEvery {
		return q.compactLocked()
	}
	return nil
}

func (q *FileQueue) removeLocked(seq uint64) {
	delete(q.index, seq)
	q.ackedBytes += q.recordLen[seq]
	delete(q.recordLen, seq)
	for i, e := range q.pending {
		if e.Seq == seq {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.ackedAbove[seq] = struct{}{}
	for {
		if _, ok := q.ackedAbove[q.ackedUpTo+1]; !ok {
			break
		}
		delete(q.ackedAbove, q.ackedUpTo+1)
		q.ackedUpTo++
	}
}

func (q *FileQueue) MarkAttempt(seq uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[seq]
	if !ok {
		return 0
	}
	e.AttemptCount++
	return e.AttemptCount
}

// compactLocked rewrites the log keeping only pending entries, then
// atomically replaces the old file.
func (q *FileQueue) compactLocked() error {
	if err := q.writer.Flush(); err != nil {
		return err
	}

	tmpPath := q.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(tmp, 1<<20)

	var newSize int64
	for _, e := range q.pending {
		body, err := json.Marshal(record{Reading: e.Reading, EnqueuedAtMs: e.EnqueuedAtMs})
		if err != nil {
			tmp.Close()
			return err
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], e.Seq)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
		if _, err := w.Write(hdr[:]); err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(body); err != nil {
			tmp.Close()
			return err
		}
		recLen := int64(recordHeaderLen) + int64(len(body))
		q.recordLen[e.Seq] = recLen
		newSize += recLen
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := q.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		return err
	}
	f, err := os.OpenFile(q.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	q.file = f
	q.writer = bufio.NewWriterSize(f, 1<<20)
	q.sizeBytes = newSize
	q.ackedBytes = 0
	return nil
}

func (q *FileQueue) Stats() ports.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ports.QueueStats{
		Pending:   len(q.pending),
		NextSeq:   q.nextSeq + 1,
		AckedUpTo: q.ackedUpTo,
		SizeBytes: q.sizeBytes,
		Durable:   true,
	}
}

func (q *FileQueue) Close() error {
	q.syncTicker.Stop()
	close(q.syncDone)

	q.mu.Lock()
	defer q.mu.Unlock()
	var errs []error
	if err := q.compactLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := q.persistMetaLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := q.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := q.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (q *FileQueue) syncLoop() {
	for {
		select {
		case <-q.syncDone:
			return
		case <-q.syncTicker.C:
			q.mu.Lock()
			if err := q.writer.Flush(); err == nil {
				_ = q.file.Sync()
			}
			q.mu.Unlock()
		}
	}
}

func (q *FileQueue) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d %d\n", q.ackedUpTo, q.nextSeq))
	return os.WriteFile(q.metaPath, data, 0o644)
}

var _ ports.DurableQueue = (*FileQueue)(nil)
