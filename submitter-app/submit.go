package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/zkrollup-network/batch-submitter/submitter-app/config"
	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da"
	"github.com/zkrollup-network/batch-submitter/x/da/contracts"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/orchestrator"
)

const receiptPollInterval = 2 * time.Second

// submitOnce proves and submits the configured batch in a single pass and
// waits for the receipt. No storage, no retries.
func submitOnce(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.Batch.Enabled() {
		return fmt.Errorf("submit-once requires the batch block in the config file")
	}

	client, err := l1.Dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial l1: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain id: %w", err)
	}
	if chainID.Uint64() != cfg.Network.ChainID {
		return fmt.Errorf("chain id mismatch: rpc reports %d, config expects %d",
			chainID.Uint64(), cfg.Network.ChainID)
	}

	signer, err := l1.NewLocalECDSASignerFromHex(new(big.Int).Set(chainID), cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	bridge, err := contracts.NewBridgeBinding(common.HexToAddress(cfg.Contracts.Bridge))
	if err != nil {
		return fmt.Errorf("failed to bind bridge contract: %w", err)
	}

	proofProvider, err := buildProver(cfg, log)
	if err != nil {
		return err
	}

	strategy, err := buildStrategy(cfg, client, bridge, signer, log)
	if err != nil {
		return err
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

	log.Info().
		Str("batch_id", b.ID.String()).
		Int("payload_bytes", len(payload)).
		Str("da_mode", string(b.DAMode)).
		Msg("Submitting batch once")

	commitment, err := strategy.Commitment(b)
	if err != nil {
		return fmt.Errorf("computing da commitment: %w", err)
	}
	oldRoot, err := bridge.StateRoot(ctx, client)
	if err != nil {
		return fmt.Errorf("reading bridge state root: %w", err)
	}

	proof, err := proofProvider.GetProof(ctx, b.ID, orchestrator.PublicInputs(commitment, oldRoot, b.NewRoot))
	if err != nil {
		return fmt.Errorf("proving batch: %w", err)
	}
	b.Proof = proof

	tx, err := strategy.BuildTx(ctx, b)
	if err != nil {
		return fmt.Errorf("building transaction: %w", err)
	}

	hash, err := l1.NewSubmitter(client, signer, log).Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("broadcasting transaction: %w", err)
	}
	log.Info().Str("tx_hash", hash.Hex()).Msg("Transaction broadcast, waiting for receipt")

	return waitForConfirmation(ctx, strategy, hash, log)
}

func waitForConfirmation(ctx context.Context, strategy da.Strategy, hash common.Hash, log zerolog.Logger) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		conf, err := strategy.CheckConfirmation(ctx, hash)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Receipt lookup failed, retrying")
		case conf.State == da.ConfirmationReverted:
			return fmt.Errorf("transaction %s reverted", hash.Hex())
		case conf.Confirmed():
			log.Info().
				Str("tx_hash", hash.Hex()).
				Uint64("confirmations", conf.Confirmations).
				Msg("Batch confirmed")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
