package da

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da/contracts"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

// CalldataStrategy posts the batch payload inside the commitBatch calldata of
// a dynamic-fee transaction.
type CalldataStrategy struct {
	confirmationChecker

	bridge *contracts.BridgeBinding
	signer l1.Signer
	fees   FeeConfig
	log    zerolog.Logger
}

var _ Strategy = (*CalldataStrategy)(nil)

// NewCalldataStrategy creates the calldata strategy.
func NewCalldataStrategy(client l1.Client, bridge *contracts.BridgeBinding, signer l1.Signer, fees FeeConfig, confirmations uint64, log zerolog.Logger) *CalldataStrategy {
	return &CalldataStrategy{
		confirmationChecker: confirmationChecker{client: client, required: confirmations},
		bridge:              bridge,
		signer:              signer,
		fees:                fees,
		log:                 log.With().Str("component", "da-calldata").Logger(),
	}
}

// Commitment is the keccak256 hash of the inline payload.
func (s *CalldataStrategy) Commitment(b *batch.Batch) (common.Hash, error) {
	return crypto.Keccak256Hash(b.Payload), nil
}

// BuildTx packs commitBatch with the payload inline and estimates gas with
// the configured buffer.
func (s *CalldataStrategy) BuildTx(ctx context.Context, b *batch.Batch) (*l1.Tx, error) {
	proof, err := contracts.ParseGroth16Proof(b.Proof)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("batch %s: %w", b.ID, err))
	}

	data, err := s.bridge.PackCommitBatch(batch.DAModeCalldata.DAID(), b.Payload, nil, b.NewRoot, proof)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	feeCap, tipCap, err := s.fees.feeCaps(ctx, s.client)
	if err != nil {
		return nil, err
	}

	to := s.bridge.Address()
	from := s.signer.Address()
	estimate, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		Data:      data,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	})
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("estimating commitBatch gas: %w", err))
	}

	gasLimit := s.fees.bufferedGas(estimate)
	s.log.Debug().
		Str("batch_id", b.ID.String()).
		Int("payload_len", len(b.Payload)).
		Uint64("gas_estimate", estimate).
		Uint64("gas_limit", gasLimit).
		Msg("calldata transaction built")

	return &l1.Tx{
		To:        to,
		Data:      data,
		GasLimit:  gasLimit,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	}, nil
}
