// Package analytics mirrors the committed journal into an analytics store.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/observability"
	"presale-ledger/internal/presale"
	"presale-ledger/internal/storage"
)

// MirrorOptions configures a Mirror.
type MirrorOptions struct {
	// Source is the journal of record, read by Backfill.
	Source storage.JournalStore
	// Target receives the copies.
	Target storage.JournalStore

	// QueueSize is the number of commits buffered before new ones are dropped.
	QueueSize int
	// FlushInterval bounds how long queued entries wait before a write.
	FlushInterval time.Duration
	// MaxBatch is the entry count that triggers an early write.
	MaxBatch int

	Logger *zap.Logger
}

// Mirror copies journal entries of committed ledger versions to Target.
// Commits arrive through OnCommit and are written by Run in batches.
// Dropped or failed batches are recovered by the next Backfill.
type Mirror struct {
	source        storage.JournalStore
	target        storage.JournalStore
	queue         chan []*domain.JournalEntry
	flushInterval time.Duration
	maxBatch      int
	logger        *zap.Logger
}

// Compile-time interface check.
var _ presale.Listener = (*Mirror)(nil)

// NewMirror creates a Mirror.
func NewMirror(opts MirrorOptions) *Mirror {
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = 1024
	}
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = time.Second
	}
	maxBatch := opts.MaxBatch
	if maxBatch == 0 {
		maxBatch = 500
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mirror{
		source:        opts.Source,
		target:        opts.Target,
		queue:         make(chan []*domain.JournalEntry, queueSize),
		flushInterval: flushInterval,
		maxBatch:      maxBatch,
		logger:        logger.Named("mirror"),
	}
}

// OnCommit queues a copy of the entries. It never blocks the committing call.
func (m *Mirror) OnCommit(entries []*domain.JournalEntry) {
	if len(entries) == 0 {
		return
	}
	batch := make([]*domain.JournalEntry, len(entries))
	for i, e := range entries {
		batch[i] = e.Clone()
	}

	select {
	case m.queue <- batch:
	default:
		observability.RecordJournalAppendFailure()
		m.logger.Warn("mirror queue full, commit dropped", zap.Int64("version", batch[0].Version))
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left with a short grace period.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	var pending []*domain.JournalEntry
	for {
		select {
		case <-ctx.Done():
			pending = append(pending, m.drain()...)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.flush(flushCtx, pending)
			cancel()
			return ctx.Err()

		case batch := <-m.queue:
			pending = append(pending, batch...)
			if len(pending) >= m.maxBatch {
				m.flush(ctx, pending)
				pending = nil
			}

		case <-ticker.C:
			if len(pending) > 0 {
				m.flush(ctx, pending)
				pending = nil
			}
		}
	}
}

func (m *Mirror) drain() []*domain.JournalEntry {
	var entries []*domain.JournalEntry
	for {
		select {
		case batch := <-m.queue:
			entries = append(entries, batch...)
		default:
			return entries
		}
	}
}

func (m *Mirror) flush(ctx context.Context, entries []*domain.JournalEntry) {
	if len(entries) == 0 {
		return
	}
	err := m.target.Append(ctx, entries)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Part of the batch is already mirrored; fall back to one by one.
		err = m.appendEach(ctx, entries)
	}
	if err != nil {
		observability.RecordJournalAppendFailure()
		m.logger.Error("mirror write failed",
			zap.Int("entries", len(entries)),
			zap.Int64("first_version", entries[0].Version),
			zap.Error(err),
		)
	}
}

func (m *Mirror) appendEach(ctx context.Context, entries []*domain.JournalEntry) error {
	for _, e := range entries {
		err := m.target.Append(ctx, []*domain.JournalEntry{e})
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
	}
	return nil
}

// Backfill copies every Source entry missing from Target and returns how many
// it copied. It is meant to run once before Run starts.
func (m *Mirror) Backfill(ctx context.Context) (int, error) {
	if m.source == nil {
		return 0, nil
	}

	have, err := m.target.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read mirrored journal: %w", err)
	}
	seen := make(map[string]struct{}, len(have))
	for _, e := range have {
		seen[e.ID] = struct{}{}
	}

	all, err := m.source.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read source journal: %w", err)
	}

	var missing []*domain.JournalEntry
	for _, e := range all {
		if _, ok := seen[e.ID]; !ok {
			missing = append(missing, e)
		}
	}

	for start := 0; start < len(missing); start += m.maxBatch {
		end := min(start+m.maxBatch, len(missing))
		if err := m.target.Append(ctx, missing[start:end]); err != nil {
			return start, fmt.Errorf("append backfill batch: %w", err)
		}
	}

	if len(missing) > 0 {
		m.logger.Info("journal mirror backfilled", zap.Int("entries", len(missing)))
	}
	return len(missing), nil
}
