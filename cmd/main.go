package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"wave-portal/config"
	"wave-portal/db"
	"wave-portal/gateway"
	"wave-portal/handlers"
	"wave-portal/logger"
	"wave-portal/portal"
	"wave-portal/repository"
	"wave-portal/routers"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	prompt := flag.Bool("prompt", false, "ask for the keystore passphrase on the terminal")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Logger.Sync()

	logger.Logger.Info("Starting wave portal...")

	// Feed storage, in memory unless a cache path is set
	var ldb *db.LevelDB
	if cfg.Feed.CachePath != "" {
		ldb, err = db.NewLevelDB(cfg.Feed.CachePath)
	} else {
		ldb, err = db.NewMemLevelDB()
	}
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	waveRepo, err := repository.NewWaveRepository(ldb)
	if err != nil {
		logger.Logger.Fatal("Failed to open wave feed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	gw := buildGateway(ctx, cfg, *prompt)
	cancel()
	if !gw.Available() {
		logger.Logger.Warn("Provider incomplete, connecting or waving will fail until it is configured")
	}
	if l, ok := gw.Ledger.(*gateway.EthLedger); ok {
		defer l.Close()
	}

	p := portal.New(gw, portal.NewStore(waveRepo))
	defer p.Close()

	ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
	if err := p.CheckExistingConnection(ctx); err != nil {
		logger.Logger.Warn("No existing connection", zap.Error(err))
	}
	cancel()

	h := handlers.NewHandler(p)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	// HTTP Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	srv.Close()
}

// buildGateway assembles whatever provider pieces the config allows. Missing pieces stay nil.
func buildGateway(ctx context.Context, cfg *config.Config, prompt bool) gateway.Gateway {
	var gw gateway.Gateway

	passphrase := gateway.EnvPassphrase(cfg.Wallet.PassphraseEnv)
	if prompt {
		passphrase = gateway.TerminalPassphrase()
	}

	wallet, err := gateway.NewKeystoreWallet(cfg.Wallet.KeystoreDir, big.NewInt(cfg.Ledger.ChainID), passphrase)
	if err != nil {
		logger.Logger.Warn("Make sure a wallet keystore is configured", zap.Error(err))
	} else {
		gw.Wallet = wallet
	}

	if cfg.Ledger.RPCURL == "" || !common.IsHexAddress(cfg.Ledger.ContractAddress) {
		logger.Logger.Warn("Ledger endpoint or contract address not configured")
		return gw
	}

	contractABI, err := gateway.LoadDescriptor(cfg.Ledger.DescriptorPath)
	if err != nil {
		logger.Logger.Error("Failed to load contract descriptor", zap.Error(err))
		return gw
	}

	var signer gateway.Signer
	if wallet != nil {
		signer = wallet
	}
	ledger, err := gateway.DialLedger(ctx, gateway.LedgerConfig{
		RPCURL:   cfg.Ledger.RPCURL,
		Address:  common.HexToAddress(cfg.Ledger.ContractAddress),
		ABI:      contractABI,
		GasLimit: cfg.Ledger.GasLimit,
	}, signer)
	if err != nil {
		logger.Logger.Error("Failed to connect to ledger", zap.Error(err))
		return gw
	}
	gw.Ledger = ledger
	return gw
}
