package l1

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

// Submitter signs and broadcasts transaction candidates, managing the wallet
// nonce in memory. The cache is primed from the pending pool on first use and
// reconciled from it when the node answers "nonce too low" for a transaction
// this submitter did not send before.
type Submitter struct {
	client Client
	signer Signer
	log    zerolog.Logger

	mu          sync.Mutex
	nonce       uint64
	noncePrimed bool
	sentByNonce map[uint64]common.Hash
}

// NewSubmitter creates a submitter for one wallet.
func NewSubmitter(client Client, signer Signer, log zerolog.Logger) *Submitter {
	return &Submitter{
		client:      client,
		signer:      signer,
		log:         log.With().Str("component", "l1-submitter").Logger(),
		sentByNonce: make(map[uint64]common.Hash),
	}
}

// Submit assigns a nonce, signs the candidate and broadcasts it. A node
// answering "already known" or "nonce too low" for a hash we previously sent
// is treated as success.
func (s *Submitter) Submit(ctx context.Context, candidate *Tx) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.noncePrimed {
		if err := s.reconcileNonceLocked(ctx); err != nil {
			return common.Hash{}, resilience.Transient(err)
		}
	}

	signed, err := s.buildAndSign(candidate, s.nonce)
	if err != nil {
		return common.Hash{}, resilience.Permanent(err)
	}
	hash := signed.Hash()

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return s.interpretSendError(ctx, err, hash)
	}

	s.sentByNonce[s.nonce] = hash
	s.log.Info().
		Str("tx_hash", hash.Hex()).
		Uint64("nonce", s.nonce).
		Bool("blob", candidate.IsBlob()).
		Uint64("gas_limit", signed.Gas()).
		Msg("transaction broadcast")
	s.nonce++

	return hash, nil
}

func (s *Submitter) buildAndSign(candidate *Tx, nonce uint64) (*types.Transaction, error) {
	chainID := s.signer.ChainID()
	value := candidate.Value
	if value == nil {
		value = new(big.Int)
	}

	var inner types.TxData
	if candidate.IsBlob() {
		inner = &types.BlobTx{
			ChainID:    uint256.MustFromBig(chainID),
			Nonce:      nonce,
			GasTipCap:  uint256.MustFromBig(candidate.GasTipCap),
			GasFeeCap:  uint256.MustFromBig(candidate.GasFeeCap),
			Gas:        candidate.GasLimit,
			To:         candidate.To,
			Value:      uint256.MustFromBig(value),
			Data:       candidate.Data,
			BlobFeeCap: uint256.MustFromBig(candidate.BlobFeeCap),
			BlobHashes: candidate.BlobHashes,
			Sidecar:    candidate.Sidecar,
		}
	} else {
		inner = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: candidate.GasTipCap,
			GasFeeCap: candidate.GasFeeCap,
			Gas:       candidate.GasLimit,
			To:        &candidate.To,
			Value:     value,
			Data:      candidate.Data,
		}
	}

	return s.signer.SignTx(types.NewTx(inner))
}

func (s *Submitter) interpretSendError(ctx context.Context, sendErr error, hash common.Hash) (common.Hash, error) {
	msg := strings.ToLower(sendErr.Error())

	if strings.Contains(msg, "already known") || strings.Contains(msg, "alreadyknown") {
		s.log.Debug().Str("tx_hash", hash.Hex()).Msg("transaction already in pool")
		s.sentByNonce[s.nonce] = hash
		s.nonce++
		return hash, nil
	}

	if strings.Contains(msg, "nonce too low") {
		if prior, ok := s.sentByNonce[s.nonce]; ok && prior == hash {
			s.nonce++
			return hash, nil
		}
		// Wallet state drifted; resync from the pending pool before retrying.
		if err := s.reconcileNonceLocked(ctx); err != nil {
			return common.Hash{}, resilience.Transient(err)
		}
		return common.Hash{}, resilience.Transient(fmt.Errorf("nonce conflict: %w", sendErr))
	}

	return common.Hash{}, resilience.Transient(fmt.Errorf("broadcasting transaction: %w", sendErr))
}

func (s *Submitter) reconcileNonceLocked(ctx context.Context) error {
	nonce, err := s.client.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return fmt.Errorf("fetching pending nonce: %w", err)
	}
	s.nonce = nonce
	s.noncePrimed = true
	s.log.Debug().Uint64("nonce", nonce).Msg("nonce reconciled from pending pool")
	return nil
}
