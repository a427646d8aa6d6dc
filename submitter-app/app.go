package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	apisrv "github.com/zkrollup-network/batch-submitter/server/api"
	apimw "github.com/zkrollup-network/batch-submitter/server/api/middleware"
	"github.com/zkrollup-network/batch-submitter/submitter-app/config"
	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da"
	"github.com/zkrollup-network/batch-submitter/x/da/contracts"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/orchestrator"
	"github.com/zkrollup-network/batch-submitter/x/prover"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
	"github.com/zkrollup-network/batch-submitter/x/storage"
)

// App represents the batch submitter application
type App struct {
	cfg  *config.Config
	orch *orchestrator.Orchestrator
	log  zerolog.Logger

	store     storage.Store
	ethClient *ethclient.Client

	// API server (HTTP)
	apiServer *apisrv.Server

	// Shutdown management
	shutdownFns []func() error

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		shutdownFns: make([]func() error, 0),
	}

	if err := app.initialize(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up storage, the L1 connection, the DA strategy, the prover
// client and the orchestrator.
func (a *App) initialize(ctx context.Context, log zerolog.Logger) error {
	store, err := storage.Open(a.cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store
	a.shutdownFns = append(a.shutdownFns, store.Close)

	client, err := l1.Dial(ctx, a.cfg.Network.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial l1: %w", err)
	}
	a.ethClient = client
	a.shutdownFns = append(a.shutdownFns, func() error {
		client.Close()
		return nil
	})

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain id: %w", err)
	}
	if chainID.Uint64() != a.cfg.Network.ChainID {
		return fmt.Errorf("chain id mismatch: rpc reports %d, config expects %d",
			chainID.Uint64(), a.cfg.Network.ChainID)
	}

	signer, err := l1.NewLocalECDSASignerFromHex(new(big.Int).Set(chainID), a.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	a.log.Info().Str("address", signer.Address().Hex()).Msg("Submitter wallet loaded")

	bridge, err := contracts.NewBridgeBinding(common.HexToAddress(a.cfg.Contracts.Bridge))
	if err != nil {
		return fmt.Errorf("failed to bind bridge contract: %w", err)
	}

	proofProvider, err := buildProver(a.cfg, log)
	if err != nil {
		return err
	}

	strategy, err := buildStrategy(a.cfg, client, bridge, signer, log)
	if err != nil {
		return err
	}

	metrics := orchestrator.NewMetrics()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Threshold: a.cfg.Resilience.CircuitBreakerThreshold,
		Cooldown:  time.Duration(a.cfg.Resilience.BreakerCooldownMs) * time.Millisecond,
		OnStateChange: func(from, to resilience.BreakerState) {
			if to == resilience.StateOpen {
				metrics.BreakerOpens.Inc()
			}
			log.Warn().
				Stringer("from", from).
				Stringer("to", to).
				Msg("prover breaker state changed")
		},
	})

	orchCfg := orchestrator.Config{
		TickInterval:   a.cfg.TickInterval(),
		MaxConcurrency: a.cfg.Orchestrator.MaxConcurrency,
		MaxAttempts:    a.cfg.Resilience.MaxRetries,
		ScanLimit:      a.cfg.Orchestrator.ScanLimit,
		ShutdownGrace:  a.cfg.ShutdownGrace(),
	}
	a.orch = orchestrator.New(orchCfg, orchestrator.Deps{
		Store:     store,
		Prover:    proofProvider,
		Strategy:  strategy,
		Bridge:    bridge,
		Client:    client,
		Submitter: l1.NewSubmitter(client, signer, log),
		Breaker:   breaker,
		Backoff: resilience.Backoff{
			Base: time.Duration(a.cfg.Resilience.BaseBackoffMs) * time.Millisecond,
			Max:  time.Duration(a.cfg.Resilience.MaxBackoffMs) * time.Millisecond,
		},
		Metrics: metrics,
		OnFatal: func(err error) {
			a.log.Error().Err(err).Msg("Fatal pipeline error, shutting down")
			if a.cancel != nil {
				a.cancel()
			}
		},
	}, log)

	if err := seedBatch(ctx, store, a.cfg, a.log); err != nil {
		return fmt.Errorf("failed to seed batch: %w", err)
	}

	// API server (shared HTTP surface)
	apiCfg := apisrv.Config{
		ListenAddr:        a.cfg.API.ListenAddr,
		ReadHeaderTimeout: a.cfg.API.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.API.ReadTimeout,
		WriteTimeout:      a.cfg.API.WriteTimeout,
		IdleTimeout:       a.cfg.API.IdleTimeout,
		MaxHeaderBytes:    a.cfg.API.MaxHeaderBytes,
	}
	s := apisrv.NewServer(apiCfg, log)
	s.Use(apimw.Recover(log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(log))

	apisrv.Routes{Store: store, Client: client, Version: Version}.Register(s)

	a.apiServer = s

	return nil
}

func buildProver(cfg *config.Config, log zerolog.Logger) (prover.ProofProvider, error) {
	if strings.TrimSpace(cfg.Prover.URL) == "" {
		log.Warn().Msg("No prover URL configured, using mock prover")
		return prover.NewMockClient(0, log), nil
	}
	client, err := prover.NewHTTPClient(cfg.Prover.URL, nil, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create prover client: %w", err)
	}
	return client, nil
}

func buildStrategy(
	cfg *config.Config,
	client l1.Client,
	bridge *contracts.BridgeBinding,
	signer l1.Signer,
	log zerolog.Logger,
) (da.Strategy, error) {
	fees := da.FeeConfig{
		Policy:            da.FeePolicy(cfg.Fees.Policy),
		FixedTipGwei:      cfg.Fees.FixedTipGwei,
		GasLimitBufferPct: cfg.Fees.GasLimitBufferPct,
		MaxBlobFeeGwei:    cfg.Fees.MaxBlobFeeGwei,
	}

	if batch.DAMode(cfg.DA.Mode) == batch.DAModeCalldata {
		return da.NewCalldataStrategy(client, bridge, signer, fees, cfg.Resilience.Confirmations, log), nil
	}

	var archiver *da.ArchiverClient
	if strings.TrimSpace(cfg.DA.ArchiverURL) != "" {
		var err error
		archiver, err = da.NewArchiverClient(cfg.DA.ArchiverURL, nil, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create archiver client: %w", err)
		}
	}
	useOpcode := cfg.DA.BlobBinding == "opcode"
	return da.NewBlobStrategy(
		client, bridge, signer, fees,
		cfg.Resilience.Confirmations, cfg.DA.BlobIndex, useOpcode, archiver, log,
	), nil
}

// seedBatch ingests the configured batch when the pipeline is empty. The
// deterministic id makes re-ingestion across restarts a no-op upsert.
func seedBatch(ctx context.Context, store storage.Store, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.Batch.Enabled() {
		return nil
	}

	pending, err := store.ListPending(ctx, 1)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		log.Info().Msg("Pipeline has pending batches, skipping seed ingest")
		return nil
	}

	payload, err := os.ReadFile(cfg.Batch.DataFile)
	if err != nil {
		return fmt.Errorf("reading batch data file: %w", err)
	}

	b := batch.New(
		cfg.Network.ChainID,
		common.HexToAddress(cfg.Contracts.Bridge),
		payload,
		crypto.Keccak256Hash(payload),
		common.HexToHash(cfg.Batch.NewRoot),
		batch.DAMode(cfg.DA.Mode),
	)
	if vh := strings.TrimSpace(cfg.Batch.BlobVersionedHash); vh != "" {
		b.BlobVersionedHash = common.HexToHash(vh).Bytes()
	}

	if err := store.Upsert(ctx, b); err != nil {
		return err
	}

	log.Info().
		Str("batch_id", b.ID.String()).
		Int("payload_bytes", len(payload)).
		Str("da_mode", string(b.DAMode)).
		Msg("Seed batch ingested")
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.orch.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	// Start API server
	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.Start(runCtx); err != nil {
				a.log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Batch submitter started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown gracefully shuts down the application by draining the
// orchestrator and executing shutdown functions.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace())
	defer cancel()

	if err := a.orch.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Orchestrator shutdown error")
	}

	for _, fn := range a.shutdownFns {
		if err := fn(); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
		}
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}
