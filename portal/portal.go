// Package portal keeps the view state in step with the WavePortal contract.
//
// The identity binding drives the feed lifecycle: each new account tears down the live
// subscription, opens a fresh one and reloads history. The wave count is refreshed
// explicitly, after binding and after every mined submission.
package portal

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"wave-portal/gateway"
	"wave-portal/logger"
	"wave-portal/metrics"
	"wave-portal/models"
)

// Portal is the connection manager, submission pipeline and feed synchronizer over one Store.
type Portal struct {
	gw    gateway.Gateway
	store *Store
	feed  *feedSync

	connMu sync.Mutex
	stop   context.CancelFunc
}

// New wires the portal. Call Close to release the live subscription.
func New(gw gateway.Gateway, store *Store) *Portal {
	base, stop := context.WithCancel(context.Background())
	return &Portal{
		gw:    gw,
		store: store,
		feed:  newFeedSync(base, gw.Ledger, store),
		stop:  stop,
	}
}

// Store returns the view state for readers.
func (p *Portal) Store() *Store {
	return p.store
}

// Snapshot is shorthand for Store().Snapshot().
func (p *Portal) Snapshot() models.Snapshot {
	return p.store.Snapshot()
}

// CheckExistingConnection binds the first already-authorized account without prompting.
func (p *Portal) CheckExistingConnection(ctx context.Context) error {
	if p.gw.Wallet == nil {
		logger.Logger.Warn("No wallet provider configured")
		return gateway.ErrProviderUnavailable
	}

	accounts, err := p.gw.Wallet.Accounts(ctx)
	if err != nil {
		logger.Logger.Error("Failed to query authorized accounts", zap.Error(err))
		return err
	}
	if len(accounts) == 0 {
		logger.Logger.Info("No authorized account found")
		return nil
	}

	logger.Logger.Info("Found an authorized account", zap.String("account", accounts[0]))
	p.bind(ctx, accounts[0])
	return nil
}

// RequestConnection prompts the wallet for access. A rejection leaves the portal unconnected.
func (p *Portal) RequestConnection(ctx context.Context) error {
	if p.gw.Wallet == nil {
		logger.Logger.Warn("No wallet provider configured")
		return gateway.ErrProviderUnavailable
	}

	accounts, err := p.gw.Wallet.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = gateway.ErrNoAccounts
	}
	if err != nil {
		logger.Logger.Error("Account request failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Connected", zap.String("account", accounts[0]))
	p.bind(ctx, accounts[0])
	return nil
}

func (p *Portal) bind(ctx context.Context, account string) {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if !p.store.bindAccount(account) {
		return
	}
	p.feed.resync(ctx)
	_ = p.RefreshCount(ctx)
}

// RefreshCount re-reads the contract's total. Failures are logged and leave the count as is.
func (p *Portal) RefreshCount(ctx context.Context) error {
	if p.gw.Ledger == nil {
		return gateway.ErrProviderUnavailable
	}
	total, err := p.gw.Ledger.TotalWaves(ctx)
	if err != nil {
		logger.Logger.Error("Failed to read wave count", zap.Error(err))
		return err
	}
	p.store.setCount(total)
	return nil
}

// LoadAllWaves replaces the loaded part of the feed with the contract's history.
func (p *Portal) LoadAllWaves(ctx context.Context) error {
	if err := p.feed.load(ctx); err != nil {
		logger.Logger.Error("Failed to load waves", zap.Error(err))
		return err
	}
	return nil
}

// SubscribeToNewWaves replaces the live subscription. Only the newest subscription appends.
func (p *Portal) SubscribeToNewWaves() {
	p.feed.subscribe()
}

// SetDraft records the message being typed.
func (p *Portal) SetDraft(message string) {
	p.store.setDraft(message)
}

// DismissAlert clears the current alert when id matches it.
func (p *Portal) DismissAlert(id string) bool {
	return p.store.dismissAlert(id)
}

// SubmitWave sends one wave and waits for it to be mined. Only one submission runs at a time;
// others get ErrSubmissionInFlight. The submission state and draft are reset on every outcome.
// The wave itself reaches the feed through the live subscription.
func (p *Portal) SubmitWave(ctx context.Context, message string) error {
	account, err := p.store.claimSubmission(message)
	if err != nil {
		return err
	}
	defer p.store.finishSubmission()

	if err := p.submit(ctx, account, message); err != nil {
		logger.Logger.Error("Wave failed", zap.String("account", account), zap.Error(err))
		p.store.raiseAlert(err.Error())
		metrics.RecordSubmission("failed")
		return err
	}
	metrics.RecordSubmission("mined")
	return nil
}

func (p *Portal) submit(ctx context.Context, account, message string) error {
	ledger := p.gw.Ledger
	if ledger == nil {
		return gateway.ErrProviderUnavailable
	}

	count, err := ledger.TotalWaves(ctx)
	if err != nil {
		return fmt.Errorf("read wave count: %w", err)
	}
	logger.Logger.Info("Retrieved total wave count", zap.Uint64("count", count))

	tx, err := ledger.Wave(ctx, account, message)
	if err != nil {
		return err
	}
	p.store.setSubmission(models.SubmissionMining)
	logger.Logger.Info("Mining", zap.String("tx", tx.String()))

	if err := ledger.AwaitConfirmation(ctx, tx); err != nil {
		return err
	}
	logger.Logger.Info("Mined", zap.String("tx", tx.String()))

	_ = p.RefreshCount(ctx)
	return nil
}

// Close releases the live subscription.
func (p *Portal) Close() {
	p.feed.teardown()
	p.stop()
}
