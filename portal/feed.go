package portal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"wave-portal/gateway"
	"wave-portal/logger"
	"wave-portal/metrics"
	"wave-portal/models"
)

// feedSync owns the single live NewWave subscription and the historical load.
type feedSync struct {
	ledger gateway.Ledger
	store  *Store
	base   context.Context

	mu     sync.Mutex // serializes lifecycles
	sub    event.Subscription
	cancel context.CancelFunc

	// generation of the lifecycle whose handler may append
	generation atomic.Uint64
}

func newFeedSync(base context.Context, ledger gateway.Ledger, store *Store) *feedSync {
	return &feedSync{ledger: ledger, store: store, base: base}
}

// resync tears down the current subscription, opens a new one and reloads history.
func (f *feedSync) resync(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gen := f.subscribeLocked()
	if err := f.loadLocked(ctx); err != nil {
		logger.Logger.Error("Failed to load waves",
			zap.Uint64("generation", gen), zap.Error(err))
	}
}

func (f *feedSync) subscribe() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeLocked()
}

func (f *feedSync) subscribeLocked() uint64 {
	f.teardownLocked()

	gen := f.generation.Add(1)
	if f.ledger == nil {
		logger.Logger.Warn("No ledger provider, live waves disabled", zap.Uint64("generation", gen))
		return gen
	}

	ctx, cancel := context.WithCancel(f.base)
	sub, err := f.ledger.SubscribeNewWaves(ctx, func(w models.Wave) {
		f.onLiveWave(gen, w)
	})
	if err != nil {
		cancel()
		logger.Logger.Error("Failed to subscribe to NewWave",
			zap.Uint64("generation", gen), zap.Error(err))
		return gen
	}

	f.sub = sub
	f.cancel = cancel
	metrics.SubscriptionOpened()
	logger.Logger.Info("Subscribed to NewWave", zap.Uint64("generation", gen))

	go f.watchErr(gen, sub)
	return gen
}

// watchErr logs a subscription that ends on its own. It is not reopened until the next lifecycle.
func (f *feedSync) watchErr(gen uint64, sub event.Subscription) {
	if err, ok := <-sub.Err(); ok && err != nil {
		logger.Logger.Error("NewWave subscription failed",
			zap.Uint64("generation", gen), zap.Error(err))
	}
}

func (f *feedSync) teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardownLocked()
}

func (f *feedSync) teardownLocked() {
	// stale handlers stop appending before the subscription is released
	f.generation.Add(1)
	if f.sub == nil {
		return
	}
	f.sub.Unsubscribe()
	f.cancel()
	f.sub = nil
	f.cancel = nil
	metrics.SubscriptionClosed()
}

func (f *feedSync) load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked(ctx)
}

func (f *feedSync) loadLocked(ctx context.Context) error {
	if f.ledger == nil {
		return gateway.ErrProviderUnavailable
	}
	waves, err := f.ledger.AllWaves(ctx)
	if err != nil {
		return err
	}
	added, err := f.store.rebaseFeed(waves)
	if err != nil {
		return err
	}
	metrics.RecordHistoryAppends(added)
	logger.Logger.Info("Loaded waves", zap.Int("count", len(waves)), zap.Int("new", added))
	return nil
}

func (f *feedSync) onLiveWave(gen uint64, w models.Wave) {
	if f.generation.Load() != gen {
		logger.Logger.Debug("Dropping wave from stale subscription",
			zap.Uint64("generation", gen), zap.String("id", w.ID))
		return
	}
	added, err := f.store.appendWave(w)
	if err != nil {
		logger.Logger.Error("Failed to append wave", zap.String("id", w.ID), zap.Error(err))
		return
	}
	metrics.RecordFeedAppend("live", added)
	logger.Logger.Info("NewWave",
		zap.String("from", w.Sender), zap.Time("timestamp", w.Timestamp), zap.Bool("added", added))
}
