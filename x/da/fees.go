package da

import (
	"context"
	"fmt"
	"math/big"

	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

// FeePolicy selects how the priority fee is chosen.
type FeePolicy string

const (
	FeePolicyStandard   FeePolicy = "standard"
	FeePolicyAggressive FeePolicy = "aggressive"
	FeePolicyFixed      FeePolicy = "fixed"
)

func (p FeePolicy) Valid() bool {
	switch p {
	case FeePolicyStandard, FeePolicyAggressive, FeePolicyFixed:
		return true
	default:
		return false
	}
}

var gwei = big.NewInt(1_000_000_000)

// FeeConfig tunes gas and fee selection for both strategies.
type FeeConfig struct {
	// Policy selects the priority fee: standard uses the node's suggestion,
	// aggressive doubles it, fixed uses FixedTipGwei.
	Policy FeePolicy
	// FixedTipGwei is the priority fee for the fixed policy.
	FixedTipGwei uint64
	// GasLimitBufferPct is added on top of the node's gas estimate.
	GasLimitBufferPct uint64
	// MaxBlobFeeGwei caps the blob base fee; exceeding it defers submission.
	MaxBlobFeeGwei uint64
}

// DefaultFeeConfig matches a conservative mainnet posture.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Policy:            FeePolicyStandard,
		FixedTipGwei:      2,
		GasLimitBufferPct: 20,
		MaxBlobFeeGwei:    100,
	}
}

// priorityFee resolves the tip per the configured policy.
func (c FeeConfig) priorityFee(ctx context.Context, client l1.Client) (*big.Int, error) {
	if c.Policy == FeePolicyFixed {
		return new(big.Int).Mul(new(big.Int).SetUint64(c.FixedTipGwei), gwei), nil
	}

	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("suggesting gas tip: %w", err))
	}
	if c.Policy == FeePolicyAggressive {
		tip = new(big.Int).Mul(tip, big.NewInt(2))
	}
	return tip, nil
}

// feeCaps derives (gasFeeCap, gasTipCap) from the latest head. The fee cap is
// twice the base fee plus the tip, which leaves room for five consecutive
// 12.5% base-fee increases.
func (c FeeConfig) feeCaps(ctx context.Context, client l1.Client) (*big.Int, *big.Int, error) {
	tip, err := c.priorityFee(ctx, client)
	if err != nil {
		return nil, nil, err
	}

	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, resilience.Transient(fmt.Errorf("fetching head: %w", err))
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return feeCap, tip, nil
}

// bufferedGas applies the configured buffer to an estimate.
func (c FeeConfig) bufferedGas(estimate uint64) uint64 {
	return estimate + estimate*c.GasLimitBufferPct/100
}

// maxBlobFee returns the blob fee cap in wei.
func (c FeeConfig) maxBlobFee() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(c.MaxBlobFeeGwei), gwei)
}
