// Package txstatus polls submitted transactions until they resolve and
// records the outcome in the history store.
package txstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/metrics"
	"github.com/gateway-fm/swapcore/internal/rpc"
	"github.com/gateway-fm/swapcore/internal/storage"
)

var (
	// ErrTimedOut is returned when bounded polling exhausts its attempt or time budget.
	ErrTimedOut = errors.New("confirmation timed out")
	ErrClosed   = errors.New("tracker closed")
)

// ReceiptSource looks up transaction receipts. A nil receipt means not yet mined.
type ReceiptSource interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (*rpc.TransactionReceipt, error)
}

// Policy controls how a hash is polled. Zero MaxAttempts and Timeout mean unbounded.
type Policy struct {
	Interval    time.Duration
	MaxInterval time.Duration // backoff ceiling after consecutive read errors
	MaxAttempts int
	Timeout     time.Duration
}

// HistoryPolicy polls every 10s until the receipt appears.
var HistoryPolicy = Policy{
	Interval:    10 * time.Second,
	MaxInterval: 10 * time.Second,
}

// MintPolicy gives a mint up to 180 attempts within 180s.
var MintPolicy = Policy{
	Interval:    time.Second,
	MaxInterval: 10 * time.Second,
	MaxAttempts: 180,
	Timeout:     180 * time.Second,
}

// delay returns the wait before the next attempt after errs consecutive read errors.
func (p Policy) delay(errs int) time.Duration {
	d := p.Interval
	for i := 0; i < errs && d < p.MaxInterval; i++ {
		d *= 2
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Event is emitted when a tracked transaction resolves.
type Event struct {
	Hash        common.Hash      `json:"hash"`
	Owner       string           `json:"owner"`
	Status      storage.TxStatus `json:"status"`
	BlockNumber uint64           `json:"blockNumber,omitempty"`
	GasUsed     uint64           `json:"gasUsed,omitempty"`
	Elapsed     time.Duration    `json:"elapsed"`
}

// Config holds configuration for the tracker.
type Config struct {
	Receipts ReceiptSource
	Store    storage.HistoryStore // optional
	History  Policy
	Mint     Policy
	Metrics  *metrics.PrometheusMetrics
	Logger   *slog.Logger
}

// Tracker owns the polling tasks of one session. Closing it cancels all of them.
type Tracker struct {
	receipts ReceiptSource
	store    storage.HistoryStore
	history  Policy
	mint     Policy
	metrics  *metrics.PrometheusMetrics
	logger   *slog.Logger

	mu     sync.Mutex
	tasks  map[common.Hash]context.CancelFunc
	subs   map[int]chan Event
	nextID int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new tracker.
func New(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.History.Interval <= 0 {
		cfg.History = HistoryPolicy
	}
	if cfg.Mint.Interval <= 0 {
		cfg.Mint = MintPolicy
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		receipts: cfg.Receipts,
		store:    cfg.Store,
		history:  cfg.History,
		mint:     cfg.Mint,
		metrics:  cfg.Metrics,
		logger:   logger,
		tasks:    make(map[common.Hash]context.CancelFunc),
		subs:     make(map[int]chan Event),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Track records rec as pending and polls its hash in the background with the
// history policy. Read errors count as still pending.
func (t *Tracker) Track(ctx context.Context, rec storage.TxRecord) error {
	if t.isClosed() {
		return ErrClosed
	}
	hash := common.HexToHash(rec.Hash)
	rec.Status = storage.TxPending
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if t.store != nil {
		if err := t.store.AddTransaction(ctx, &rec); err != nil {
			return fmt.Errorf("failed to record pending transaction: %w", err)
		}
	}
	t.start(hash, rec.Owner, rec.CreatedAt)
	return nil
}

// Resume restarts polling for every pending record in the store.
func (t *Tracker) Resume(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	pending, err := t.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	for _, rec := range pending {
		t.start(common.HexToHash(rec.Hash), rec.Owner, rec.CreatedAt)
	}
	return len(pending), nil
}

func (t *Tracker) start(hash common.Hash, owner string, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, ok := t.tasks[hash]; ok {
		return
	}
	ctx, cancel := context.WithCancel(t.ctx)
	t.tasks[hash] = cancel
	t.metrics.SetTrackedTxs(len(t.tasks))

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.forget(hash)

		receipt, err := t.poll(ctx, hash, t.history)
		if err != nil || ctx.Err() != nil {
			// cancelled by Stop or Close
			return
		}
		t.resolve(ctx, hash, owner, since, receipt)
	}()
}

func (t *Tracker) forget(hash common.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.tasks[hash]; ok {
		cancel()
		delete(t.tasks, hash)
	}
	t.metrics.SetTrackedTxs(len(t.tasks))
}

// Stop cancels polling for hash. The record stays pending.
func (t *Tracker) Stop(hash common.Hash) {
	t.mu.Lock()
	cancel, ok := t.tasks[hash]
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Tracking reports whether hash is being polled.
func (t *Tracker) Tracking(hash common.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tasks[hash]
	return ok
}

// Close cancels every polling task and waits for them to exit. No state is
// mutated afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()

	t.mu.Lock()
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	t.mu.Unlock()
}

// Subscribe returns a channel of resolution events and a function to unsubscribe.
// Slow subscribers miss events rather than block polling.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Event, buffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			close(sub)
			delete(t.subs, id)
		}
	}
}

// AwaitConfirmation polls hash with the bounded mint policy and blocks until
// it resolves. It returns ErrTimedOut when the budget runs out and ErrClosed
// when the tracker is closed first. A resolved status is persisted when the
// store holds a record for hash.
func (t *Tracker) AwaitConfirmation(ctx context.Context, hash common.Hash) (storage.TxStatus, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return storage.TxPending, ErrClosed
	}
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	start := time.Now()
	receipt, err := t.poll(ctx, hash, t.mint)
	if t.ctx.Err() != nil {
		return storage.TxPending, ErrClosed
	}
	if err != nil {
		if errors.Is(err, ErrTimedOut) {
			t.metrics.RecordTxResolved("timed_out", time.Since(start))
		}
		return storage.TxPending, err
	}
	return t.resolve(ctx, hash, "", start, receipt), nil
}

// poll loops until a receipt appears. Lookups run strictly one after another.
func (t *Tracker) poll(ctx context.Context, hash common.Hash, p Policy) (*rpc.TransactionReceipt, error) {
	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	errs := 0
	for attempt := 1; ; attempt++ {
		receipt, err := t.receipts.GetTransactionReceipt(ctx, hash.Hex())
		switch {
		case err != nil:
			errs++
			t.logger.Debug("receipt lookup failed",
				slog.String("hash", hash.Hex()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		case receipt != nil:
			return receipt, nil
		default:
			errs = 0
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrTimedOut, hash.Hex(), attempt)
		}

		timer := time.NewTimer(p.delay(errs))
		select {
		case <-ctx.Done():
			timer.Stop()
			if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s", ErrTimedOut, hash.Hex(), p.Timeout)
			}
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Tracker) resolve(ctx context.Context, hash common.Hash, owner string, since time.Time, receipt *rpc.TransactionReceipt) storage.TxStatus {
	status := storage.TxFailed
	if receipt.Status == 1 {
		status = storage.TxSuccess
	}
	elapsed := time.Since(since)

	if t.store != nil {
		written, err := t.store.ResolveTransaction(context.WithoutCancel(ctx), hash.Hex(), storage.Resolution{
			Status:      status,
			ResolvedAt:  time.Now(),
			BlockNumber: receipt.BlockNumber,
			GasUsed:     receipt.GasUsed,
		})
		if err != nil {
			t.logger.Error("failed to persist transaction status",
				slog.String("hash", hash.Hex()),
				slog.String("error", err.Error()))
		} else if !written {
			t.logger.Debug("transaction already resolved or unrecorded", slog.String("hash", hash.Hex()))
		}
	}

	t.metrics.RecordTxResolved(status.String(), elapsed)
	t.logger.Info("transaction resolved",
		slog.String("hash", hash.Hex()),
		slog.String("status", status.String()),
		slog.Uint64("block", receipt.BlockNumber),
		slog.Duration("elapsed", elapsed))

	t.publish(Event{
		Hash:        hash,
		Owner:       owner,
		Status:      status,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Elapsed:     elapsed,
	})
	return status
}

func (t *Tracker) publish(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
