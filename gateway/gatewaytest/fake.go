// Package gatewaytest provides in-memory wallet and ledger fakes.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"wave-portal/gateway"
	"wave-portal/models"
)

// Wallet is a scripted wallet provider.
type Wallet struct {
	mu         sync.Mutex
	Authorized []string
	Grant      []string
	RequestErr error
	Requests   int
}

func (w *Wallet) Accounts(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.Authorized...), nil
}

func (w *Wallet) RequestAccounts(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Requests++
	if w.RequestErr != nil {
		return nil, w.RequestErr
	}
	w.Authorized = append(w.Authorized, w.Grant...)
	return append([]string(nil), w.Grant...), nil
}

// Ledger is an in-memory WavePortal. A mined wave bumps the total but is not emitted;
// tests deliver live events with Emit.
type Ledger struct {
	mu       sync.Mutex
	history  []models.Wave
	total    uint64
	handlers map[int]func(models.Wave)
	nextSub  int

	TotalErr     error
	AllWavesErr  error
	WaveErr      error
	ConfirmErr   error
	SubscribeErr error

	// Gate, when set, holds AwaitConfirmation until it is closed or receives.
	Gate chan struct{}
	// Mining is signalled once per transaction that reaches AwaitConfirmation.
	Mining chan struct{}
	// LeakHandlers keeps handlers registered after Unsubscribe.
	LeakHandlers bool

	Sent []string
}

// NewLedger starts with history and a total equal to its length.
func NewLedger(history ...models.Wave) *Ledger {
	return &Ledger{
		history:  history,
		total:    uint64(len(history)),
		handlers: make(map[int]func(models.Wave)),
	}
}

// SetTotal overrides the contract total.
func (l *Ledger) SetTotal(total uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total = total
}

// AddHistory appends to the stored wave list without notifying subscribers.
func (l *Ledger) AddHistory(w models.Wave) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, w)
}

// Emit delivers w to every registered handler and reports how many were called.
func (l *Ledger) Emit(w models.Wave) int {
	l.mu.Lock()
	hs := make([]func(models.Wave), 0, len(l.handlers))
	for _, h := range l.handlers {
		hs = append(hs, h)
	}
	l.mu.Unlock()

	for _, h := range hs {
		h(w)
	}
	return len(hs)
}

// Subscribers returns the number of registered handlers.
func (l *Ledger) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// SentCount returns how many wave transactions were sent.
func (l *Ledger) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Sent)
}

func (l *Ledger) TotalWaves(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TotalErr != nil {
		return 0, l.TotalErr
	}
	return l.total, nil
}

func (l *Ledger) AllWaves(ctx context.Context) ([]models.Wave, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AllWavesErr != nil {
		return nil, l.AllWavesErr
	}
	return append([]models.Wave(nil), l.history...), nil
}

func (l *Ledger) Wave(ctx context.Context, from string, message string) (*gateway.TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WaveErr != nil {
		return nil, l.WaveErr
	}
	l.Sent = append(l.Sent, message)
	return &gateway.TxHandle{Hash: crypto.Keccak256Hash([]byte(from), []byte(message))}, nil
}

func (l *Ledger) AwaitConfirmation(ctx context.Context, tx *gateway.TxHandle) error {
	if l.Mining != nil {
		l.Mining <- struct{}{}
	}
	if l.Gate != nil {
		select {
		case <-l.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ConfirmErr != nil {
		return l.ConfirmErr
	}
	l.total++
	return nil
}

func (l *Ledger) SubscribeNewWaves(ctx context.Context, handler func(models.Wave)) (event.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubscribeErr != nil {
		return nil, l.SubscribeErr
	}
	id := l.nextSub
	l.nextSub++
	l.handlers[id] = handler

	return event.NewSubscription(func(quit <-chan struct{}) error {
		var err error
		select {
		case <-quit:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if !l.LeakHandlers {
			l.mu.Lock()
			delete(l.handlers, id)
			l.mu.Unlock()
		}
		return err
	}), nil
}
