package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"wave-portal/logger"
	"wave-portal/models"
)

// Backend is the node connection the ledger talks through. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Signer produces transaction options for an account.
type Signer interface {
	Transactor(ctx context.Context, from common.Address) (*bind.TransactOpts, error)
}

// LedgerConfig describes where the contract lives.
type LedgerConfig struct {
	RPCURL   string
	Address  common.Address
	ABI      abi.ABI
	GasLimit uint64
}

// EthLedger implements Ledger against a deployed WavePortal contract.
type EthLedger struct {
	backend  Backend
	contract *bind.BoundContract
	signer   Signer
	gasLimit uint64
	closer   func()
}

// rawWave mirrors the contract's Wave struct.
type rawWave struct {
	Waver     common.Address
	Message   string
	Timestamp *big.Int
}

// newWaveEvent mirrors NewWave(address indexed from, uint256 timestamp, string message).
type newWaveEvent struct {
	From      common.Address
	Timestamp *big.Int
	Message   string
}

// DialLedger connects to the node at cfg.RPCURL. Live subscriptions need a websocket or IPC endpoint.
func DialLedger(ctx context.Context, cfg LedgerConfig, signer Signer) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	l := NewEthLedger(client, cfg, signer)
	l.closer = client.Close
	return l, nil
}

// NewEthLedger binds the contract on an existing backend.
func NewEthLedger(backend Backend, cfg LedgerConfig, signer Signer) *EthLedger {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return &EthLedger{
		backend:  backend,
		contract: bind.NewBoundContract(cfg.Address, cfg.ABI, backend, backend, backend),
		signer:   signer,
		gasLimit: gasLimit,
	}
}

// Close releases the node connection when the ledger owns it.
func (l *EthLedger) Close() {
	if l.closer != nil {
		l.closer()
	}
}

func (l *EthLedger) TotalWaves(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodTotalWaves); err != nil {
		return 0, fmt.Errorf("%s: %w", MethodTotalWaves, err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("%s: empty result", MethodTotalWaves)
	}
	total := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if !total.IsUint64() {
		return 0, fmt.Errorf("%s: total %s overflows uint64", MethodTotalWaves, total)
	}
	return total.Uint64(), nil
}

func (l *EthLedger) AllWaves(ctx context.Context) ([]models.Wave, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodAllWaves); err != nil {
		return nil, fmt.Errorf("%s: %w", MethodAllWaves, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", MethodAllWaves)
	}
	raw := *abi.ConvertType(out[0], new([]rawWave)).(*[]rawWave)

	waves := make([]models.Wave, 0, len(raw))
	for _, r := range raw {
		waves = append(waves, models.NewWave(r.Waver, r.Timestamp, r.Message))
	}
	return waves, nil
}

func (l *EthLedger) Wave(ctx context.Context, from string, message string) (*TxHandle, error) {
	if l.signer == nil {
		return nil, ErrProviderUnavailable
	}
	if !common.IsHexAddress(from) {
		return nil, fmt.Errorf("invalid sender address %q", from)
	}

	opts, err := l.signer.Transactor(ctx, common.HexToAddress(from))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = l.gasLimit

	tx, err := l.contract.Transact(opts, MethodWave, message)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MethodWave, err)
	}
	return NewTxHandle(tx), nil
}

func (l *EthLedger) AwaitConfirmation(ctx context.Context, h *TxHandle) error {
	if h == nil || h.tx == nil {
		return errors.New("no transaction to wait for")
	}
	receipt, err := bind.WaitMined(ctx, l.backend, h.tx)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", h, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTransactionReverted, h)
	}
	return nil
}

// SubscribeNewWaves forwards every NewWave log to handler until the subscription is released.
func (l *EthLedger) SubscribeNewWaves(ctx context.Context, handler func(models.Wave)) (event.Subscription, error) {
	logs, sub, err := l.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, EventNewWave)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", EventNewWave, err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case lg := <-logs:
				if lg.Removed {
					continue
				}
				var ev newWaveEvent
				if err := l.contract.UnpackLog(&ev, EventNewWave, lg); err != nil {
					logger.Logger.Warn("Failed to unpack NewWave log",
						zap.String("tx", lg.TxHash.Hex()), zap.Error(err))
					continue
				}
				handler(models.NewWave(ev.From, ev.Timestamp, ev.Message))
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}
