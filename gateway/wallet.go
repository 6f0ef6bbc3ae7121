package gateway

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/term"

	"wave-portal/logger"
)

// PassphraseFunc supplies the passphrase used to unlock an account.
type PassphraseFunc func(ctx context.Context, account common.Address) (string, error)

// KeystoreWallet exposes a local keystore as the wallet provider.
// Accounts unlocked during the process lifetime count as authorized.
type KeystoreWallet struct {
	ks         *keystore.KeyStore
	chainID    *big.Int
	passphrase PassphraseFunc

	mu       sync.Mutex
	unlocked []common.Address
}

// NewKeystoreWallet opens the keystore directory. It returns ErrProviderUnavailable when dir is empty or missing.
func NewKeystoreWallet(dir string, chainID *big.Int, passphrase PassphraseFunc) (*KeystoreWallet, error) {
	if dir == "" {
		return nil, ErrProviderUnavailable
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: keystore %s", ErrProviderUnavailable, dir)
	}
	return &KeystoreWallet{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		chainID:    chainID,
		passphrase: passphrase,
	}, nil
}

func (w *KeystoreWallet) Accounts(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.unlocked))
	for _, addr := range w.unlocked {
		out = append(out, addr.Hex())
	}
	return out, nil
}

// RequestAccounts unlocks the first keystore account using the passphrase source.
func (w *KeystoreWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	all := w.ks.Accounts()
	if len(all) == 0 {
		return nil, ErrNoAccounts
	}
	account := all[0]

	if w.passphrase == nil {
		return nil, fmt.Errorf("no passphrase source for %s", account.Address.Hex())
	}
	pass, err := w.passphrase(ctx, account.Address)
	if err != nil {
		return nil, fmt.Errorf("passphrase for %s: %w", account.Address.Hex(), err)
	}
	if err := w.ks.Unlock(account, pass); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", account.Address.Hex(), err)
	}

	w.mu.Lock()
	if !containsAddress(w.unlocked, account.Address) {
		w.unlocked = append(w.unlocked, account.Address)
	}
	w.mu.Unlock()

	logger.Logger.Info("Keystore account unlocked", zap.String("account", account.Address.Hex()))
	return []string{account.Address.Hex()}, nil
}

// Transactor signs with the keystore for an unlocked account.
func (w *KeystoreWallet) Transactor(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	w.mu.Lock()
	ok := containsAddress(w.unlocked, from)
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("account %s is not authorized", from.Hex())
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(w.ks, accounts.Account{Address: from}, w.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// EnvPassphrase reads the passphrase from an environment variable.
func EnvPassphrase(name string) PassphraseFunc {
	return func(ctx context.Context, account common.Address) (string, error) {
		pass, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%s is not set", name)
		}
		return pass, nil
	}
}

// TerminalPassphrase prompts on the controlling terminal.
func TerminalPassphrase() PassphraseFunc {
	return func(ctx context.Context, account common.Address) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("stdin is not a terminal")
		}
		fmt.Fprintf(os.Stderr, "Passphrase for %s: ", account.Hex())
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(pass), nil
	}
}
