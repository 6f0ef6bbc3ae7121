// Package gateway is the capability surface the portal uses to reach the wallet and the WavePortal contract.
package gateway

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"wave-portal/models"
)

// DefaultGasLimit is the gas ceiling attached to every wave transaction.
const DefaultGasLimit uint64 = 300000

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrNoAccounts          = errors.New("wallet returned no accounts")
	ErrTransactionReverted = errors.New("transaction reverted")
)

// Wallet holds the user's accounts.
type Wallet interface {
	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	// RequestAccounts prompts the user for access.
	RequestAccounts(ctx context.Context) ([]string, error)
}

// Ledger is the WavePortal contract as seen through a provider.
type Ledger interface {
	TotalWaves(ctx context.Context) (uint64, error)
	AllWaves(ctx context.Context) ([]models.Wave, error)
	Wave(ctx context.Context, from string, message string) (*TxHandle, error)
	AwaitConfirmation(ctx context.Context, tx *TxHandle) error
	SubscribeNewWaves(ctx context.Context, handler func(models.Wave)) (event.Subscription, error)
}

// Gateway bundles both capabilities. Either may be nil when no provider is configured.
type Gateway struct {
	Wallet Wallet
	Ledger Ledger
}

// Available reports whether both capabilities are present.
func (g Gateway) Available() bool {
	return g.Wallet != nil && g.Ledger != nil
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash common.Hash
	tx   *types.Transaction
}

// NewTxHandle wraps a signed transaction.
func NewTxHandle(tx *types.Transaction) *TxHandle {
	return &TxHandle{Hash: tx.Hash(), tx: tx}
}

func (h *TxHandle) String() string {
	if h == nil {
		return ""
	}
	return h.Hash.Hex()
}
