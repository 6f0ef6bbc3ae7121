package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wave-portal/models"
)

var contractAddr = common.HexToAddress("0x59f111a9151Ed9b8b0cb255fa19a59B277C36B3a")

// scriptedBackend answers contract calls from canned values and records what is sent.
type scriptedBackend struct {
	abi abi.ABI

	mu      sync.Mutex
	total   *big.Int
	history []rawWave
	callErr error
	status  uint64
	sent    []*types.Transaction
	logs    chan<- types.Log
	closed  chan struct{}
}

func newScriptedBackend(t *testing.T) *scriptedBackend {
	t.Helper()
	parsed, err := LoadDescriptor("../config/WavePortal.json")
	require.NoError(t, err)
	return &scriptedBackend{
		abi:    parsed,
		total:  big.NewInt(0),
		status: types.ReceiptStatusSuccessful,
		closed: make(chan struct{}),
	}
}

func (b *scriptedBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (b *scriptedBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callErr != nil {
		return nil, b.callErr
	}
	method, err := b.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case MethodTotalWaves:
		return method.Outputs.Pack(b.total)
	case MethodAllWaves:
		return method.Outputs.Pack(b.history)
	}
	return nil, fmt.Errorf("unexpected call to %s", method.Name)
}

func (b *scriptedBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *scriptedBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (b *scriptedBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (b *scriptedBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *scriptedBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *scriptedBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (b *scriptedBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *scriptedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Receipt{TxHash: txHash, Status: b.status}, nil
}

func (b *scriptedBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *scriptedBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = ch
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		close(b.closed)
		return nil
	}), nil
}

func (b *scriptedBackend) deliver(t *testing.T, lg types.Log) {
	t.Helper()
	b.mu.Lock()
	ch := b.logs
	b.mu.Unlock()
	require.NotNil(t, ch, "no log subscription")
	ch <- lg
}

func (b *scriptedBackend) newWaveLog(t *testing.T, from common.Address, ts int64, message string) types.Log {
	t.Helper()
	ev := b.abi.Events[EventNewWave]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(ts), message)
	require.NoError(t, err)
	return types.Log{
		Address: contractAddr,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(from.Bytes())},
		Data:    data,
	}
}

// keySigner signs for a single generated key.
type keySigner struct {
	opts *bind.TransactOpts
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	return &keySigner{opts: opts}
}

func (s *keySigner) Transactor(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	if from != s.opts.From {
		return nil, bind.ErrNotAuthorized
	}
	opts := *s.opts
	return &opts, nil
}

func newTestLedger(t *testing.T, signer Signer) (*EthLedger, *scriptedBackend) {
	t.Helper()
	backend := newScriptedBackend(t)
	l := NewEthLedger(backend, LedgerConfig{Address: contractAddr, ABI: backend.abi}, signer)
	return l, backend
}

func TestEthLedger_TotalAndHistory(t *testing.T) {
	l, backend := newTestLedger(t, nil)
	alice := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	backend.total = big.NewInt(2)
	backend.history = []rawWave{
		{Waver: alice, Message: "gm", Timestamp: big.NewInt(1630497600)},
		{Waver: alice, Message: "gm", Timestamp: big.NewInt(1630497600)},
	}

	total, err := l.TotalWaves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)

	waves, err := l.AllWaves(context.Background())
	require.NoError(t, err)
	want := models.NewWave(alice, big.NewInt(1630497600), "gm")
	require.Len(t, waves, 2)
	for _, w := range waves {
		assert.Equal(t, want.ID, w.ID)
		assert.Equal(t, alice.Hex(), w.Sender)
		assert.Equal(t, "gm", w.Message)
		assert.True(t, want.Timestamp.Equal(w.Timestamp))
	}
}

func TestEthLedger_CallFailure(t *testing.T) {
	l, backend := newTestLedger(t, nil)
	backend.callErr = errors.New("node down")

	_, err := l.TotalWaves(context.Background())
	require.ErrorContains(t, err, MethodTotalWaves)
	_, err = l.AllWaves(context.Background())
	require.ErrorContains(t, err, "node down")
}

func TestEthLedger_WaveSendsWithGasLimit(t *testing.T) {
	signer := newKeySigner(t)
	l, backend := newTestLedger(t, signer)

	h, err := l.Wave(context.Background(), signer.opts.From.Hex(), "hello")
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, h.Hash, tx.Hash())
	assert.Equal(t, DefaultGasLimit, tx.Gas())
	require.NotNil(t, tx.To())
	assert.Equal(t, contractAddr, *tx.To())

	method := backend.abi.Methods[MethodWave]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"hello"}, args)

	require.NoError(t, l.AwaitConfirmation(context.Background(), h))
}

func TestEthLedger_WaveRejects(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	_, err := l.Wave(context.Background(), "0x00000000000000000000000000000000000000aa", "hi")
	require.ErrorIs(t, err, ErrProviderUnavailable)

	l, backend := newTestLedger(t, newKeySigner(t))
	_, err = l.Wave(context.Background(), "not-an-address", "hi")
	require.Error(t, err)

	// an account the signer does not hold
	_, err = l.Wave(context.Background(), "0x00000000000000000000000000000000000000aa", "hi")
	require.ErrorIs(t, err, bind.ErrNotAuthorized)
	assert.Empty(t, backend.sent)
}

func TestEthLedger_AwaitConfirmation(t *testing.T) {
	signer := newKeySigner(t)
	l, backend := newTestLedger(t, signer)
	h, err := l.Wave(context.Background(), signer.opts.From.Hex(), "hello")
	require.NoError(t, err)

	backend.status = types.ReceiptStatusFailed
	err = l.AwaitConfirmation(context.Background(), h)
	require.ErrorIs(t, err, ErrTransactionReverted)
	assert.Contains(t, err.Error(), h.Hash.Hex())

	require.Error(t, l.AwaitConfirmation(context.Background(), nil))
}

func TestEthLedger_SubscribeNewWaves(t *testing.T) {
	l, backend := newTestLedger(t, nil)
	got := make(chan models.Wave, 4)

	sub, err := l.SubscribeNewWaves(context.Background(), func(w models.Wave) { got <- w })
	require.NoError(t, err)

	from := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	reorged := backend.newWaveLog(t, from, 1630497600, "gone")
	reorged.Removed = true
	backend.deliver(t, reorged)
	backend.deliver(t, backend.newWaveLog(t, from, 1630497660, "gm"))

	select {
	case w := <-got:
		want := models.NewWave(from, big.NewInt(1630497660), "gm")
		assert.Equal(t, want.ID, w.ID)
		assert.Equal(t, from.Hex(), w.Sender)
		assert.Equal(t, "gm", w.Message)
		assert.True(t, want.Timestamp.Equal(w.Timestamp))
	case <-time.After(time.Second):
		t.Fatal("no wave delivered")
	}

	sub.Unsubscribe()
	select {
	case <-backend.closed:
	case <-time.After(time.Second):
		t.Fatal("log subscription not released")
	}
	assert.Empty(t, got)
}
