// Package presale implements the presale engine: purchases in four settlement
// assets, a single claim unlock and owner settlement of the raised funds.
//
// Mutating calls are serialized by a writer lock. Each call stages a new
// ledger, persists it, performs the external transfer and only then publishes
// the ledger for readers. A rejected transfer persists the previous images
// again; a transfer with an unknown outcome keeps the new ones.
package presale

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"presale-ledger/internal/assetledger"
	"presale-ledger/internal/conversion"
	"presale-ledger/internal/domain"
	"presale-ledger/internal/idhash"
	"presale-ledger/internal/observability"
	"presale-ledger/internal/storage"
)

// Listener receives the journal entries of every committed ledger version.
// It is called with the writer lock held and must not block.
type Listener interface {
	OnCommit(entries []*domain.JournalEntry)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(entries []*domain.JournalEntry)

// OnCommit calls f(entries).
func (f ListenerFunc) OnCommit(entries []*domain.JournalEntry) {
	f(entries)
}

// Options configures an Engine.
type Options struct {
	Config    *domain.SaleConfig
	Bonus     BonusPolicy
	Assets    *assetledger.Registry
	SaleToken assetledger.Ledger

	// Custody is the account that receives payments and holds sale tokens.
	// It is also the spender every payer approves.
	Custody domain.Address

	LedgerStore storage.LedgerStore
	Journal     storage.JournalStore
	Logger      *zap.Logger
	Now         func() time.Time

	// LockTimeout bounds the wait for the writer lock. Defaults to
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// DefaultLockTimeout is the writer lock wait used when Options leaves it unset.
const DefaultLockTimeout = 30 * time.Second

// Engine is the presale ledger engine.
type Engine struct {
	cfg     *domain.SaleConfig
	conv    *conversion.Converter
	bonus   BonusPolicy
	assets  *assetledger.Registry
	token   assetledger.Ledger
	custody domain.Address
	store   storage.LedgerStore
	journal storage.JournalStore
	logger  *zap.Logger

	writer      *semaphore.Weighted
	lockTimeout time.Duration
	current     atomic.Pointer[ledger]
	nowFn       atomic.Pointer[func() time.Time]

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New creates an engine and restores the persisted ledger, if any.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("presale: %w", err)
	}
	if err := opts.Bonus.Validate(); err != nil {
		return nil, fmt.Errorf("presale: %w", err)
	}
	if opts.Assets == nil || opts.SaleToken == nil {
		return nil, errors.New("presale: asset ledgers are required")
	}
	if opts.Custody.IsZero() {
		return nil, errors.New("presale: custody account is required")
	}
	if opts.LedgerStore == nil || opts.Journal == nil {
		return nil, errors.New("presale: ledger and journal stores are required")
	}

	conv, err := conversion.FromConfig(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("presale: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	e := &Engine{
		cfg:     opts.Config.Clone(),
		conv:    conv,
		bonus:   opts.Bonus,
		assets:  opts.Assets,
		token:   opts.SaleToken,
		custody: opts.Custody,
		store:   opts.LedgerStore,
		journal: opts.Journal,
		logger:  logger.Named("presale"),

		writer:      semaphore.NewWeighted(1),
		lockTimeout: lockTimeout,
	}
	e.SetNowFunc(opts.Now)

	l, err := e.restore(ctx)
	if err != nil {
		return nil, err
	}
	e.current.Store(l)

	e.logger.Info("presale engine ready",
		zap.Int64("version", l.state.Version),
		zap.Int64("investors", l.state.InvestorCount),
		zap.Stringer("phase", e.Phase()),
	)
	return e, nil
}

func (e *Engine) restore(ctx context.Context) (*ledger, error) {
	state, investors, err := e.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return newLedger(domain.NewLedgerState(e.cfg.Treasury, e.cfg.ClaimTime)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("presale: load ledger: %w", err)
	}
	if err := state.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("presale: persisted ledger: %w", err)
	}

	l := newLedger(state)
	sort.Slice(investors, func(i, j int) bool { return investors[i].Seq < investors[j].Seq })
	for _, r := range investors {
		l.investors[r.Investor] = r
		l.order = append(l.order, r.Investor)
	}
	return l, nil
}

// SetNowFunc overrides the clock. nil restores time.Now.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn.Store(&now)
}

func (e *Engine) now() int64 {
	return (*e.nowFn.Load())().Unix()
}

// Subscribe registers a listener for committed journal entries.
func (e *Engine) Subscribe(l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// execute runs a mutating operation: reentrancy check, writer lock, metrics.
func (e *Engine) execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, err := e.enter(ctx)
	if err != nil {
		observability.RecordOperation(op, 0, string(domain.KindOf(err)))
		return err
	}

	if err := e.lock(ctx); err != nil {
		observability.RecordOperation(op, 0, string(domain.KindOf(err)))
		e.logger.Warn("writer lock not acquired", zap.String("op", op), zap.Error(err))
		return err
	}
	defer e.unlock()

	start := time.Now()
	err = fn(ctx)

	kind := ""
	if err != nil {
		kind = string(domain.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		e.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
	}
	observability.RecordOperation(op, time.Since(start).Seconds(), kind)
	return err
}

// lock acquires the writer lock. The wait is bounded by ctx and the lock
// timeout, so a call re-entering from an asset ledger on a fresh context
// fails with ErrEngineBusy instead of waiting on itself forever.
func (e *Engine) lock(ctx context.Context) error {
	if e.writer.TryAcquire(1) {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	if err := e.writer.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.ErrEngineBusy
	}
	return nil
}

func (e *Engine) unlock() {
	e.writer.Release(1)
}

// apply commits one staged transaction. interact performs the external
// transfer, if any, after the after-images are persisted.
//
// A definite rejection restores the before-images. When the outcome is
// unknown the transfer may have happened, so the after-images stay committed
// and the caller gets ErrTransferUnconfirmed; restoring them could pay twice.
func (e *Engine) apply(ctx context.Context, t *txn, interact func(ctx context.Context) error) error {
	cs := t.changeset()
	if err := cs.State.CheckInvariants(); err != nil {
		return fmt.Errorf("presale: refusing to commit: %w", err)
	}
	if err := e.store.Apply(ctx, cs); err != nil {
		return fmt.Errorf("presale: persist ledger: %w", err)
	}

	var unconfirmed error
	if interact != nil {
		err := interact(ctx)
		switch {
		case err == nil:
		case errors.Is(err, assetledger.ErrOutcomeUnknown):
			observability.RecordUnconfirmedTransfer()
			e.logger.Error("transfer outcome unknown, keeping committed version",
				zap.Int64("version", cs.State.Version),
				zap.Error(err),
			)
			for _, en := range t.entries {
				en.Note = joinNote(en.Note, "unconfirmed")
			}
			unconfirmed = fmt.Errorf("%w: %w", domain.ErrTransferUnconfirmed, err)
		default:
			if rbErr := e.store.Apply(context.WithoutCancel(ctx), t.revert()); rbErr != nil {
				e.logger.Error("failed to persist rollback",
					zap.Int64("version", cs.State.Version),
					zap.Error(rbErr),
				)
			}
			return ledgerError(err)
		}
	}

	next := t.result()
	e.current.Store(next)

	observability.UpdateLedger(
		next.state.FundsRaised, next.state.TokensAvailable, next.state.TokensSold,
		domain.QuoteDecimals, e.cfg.TokenDecimals,
		next.state.InvestorCount, next.state.Version, next.state.UpdatedAt,
	)

	e.publish(ctx, t.entries)
	return unconfirmed
}

func joinNote(note, tag string) string {
	if note == "" {
		return tag
	}
	return note + "; " + tag
}

// publish appends journal entries and notifies listeners. The ledger is the
// source of truth; a journal failure is logged and does not fail the commit.
func (e *Engine) publish(ctx context.Context, entries []*domain.JournalEntry) {
	if len(entries) == 0 {
		return
	}
	if err := e.journal.Append(context.WithoutCancel(ctx), entries); err != nil {
		observability.RecordJournalAppendFailure()
		e.logger.Error("failed to append journal entries",
			zap.Int64("version", entries[0].Version),
			zap.Int("entries", len(entries)),
			zap.Error(err),
		)
	}

	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, l := range e.listeners {
		out := make([]*domain.JournalEntry, len(entries))
		for i, en := range entries {
			out[i] = en.Clone()
		}
		l.OnCommit(out)
	}
}

// ledgerError maps asset ledger failures onto presale errors.
func ledgerError(err error) error {
	switch {
	case errors.Is(err, assetledger.ErrInsufficientAllowance):
		return fmt.Errorf("%w: %w", domain.ErrInsufficientAllowance, err)
	case errors.Is(err, assetledger.ErrInsufficientBalance):
		return fmt.Errorf("%w: %w", domain.ErrInsufficientBalance, err)
	}
	return err
}

func (e *Engine) assetLedger(a domain.Asset) (assetledger.Ledger, error) {
	l, ok := e.assets.Ledger(a)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAsset, a)
	}
	return l, nil
}

func stampEntries(entries []*domain.JournalEntry, version int64) {
	for i, en := range entries {
		en.Version = version
		en.Index = i
		en.ID = idhash.ComputeJournalID(version, en.Kind, en.Investor, en.Asset, i)
	}
}
